package realtime

import (
	"time"

	"chat-realtime/internal/repositories"
	"chat-realtime/internal/telemetry"
)

const defaultDeliveryDelay = time.Second

// Deps are the collaborators the core is built on.
type Deps struct {
	Groups   repositories.GroupRepository
	Messages repositories.MessageRepository
	Users    repositories.UserRepository
	Audit    *telemetry.AuditEmitter
	Verifier Verifier
}

type Options struct {
	DeliveryDelay       time.Duration
	AdminsCanAddMembers bool
}

// Core owns the shared realtime state and the services operating on it.
type Core struct {
	Registry  *Registry
	Rooms     *Rooms
	Typing    *Typing
	Scheduler *Scheduler
	Groups    *GroupService
	Messages  *MessageService
	Gateway   *Gateway
}

// NewCore wires registry, rooms, typing, scheduler, services and gateway.
func NewCore(deps Deps, opts Options) *Core {
	if opts.DeliveryDelay <= 0 {
		opts.DeliveryDelay = defaultDeliveryDelay
	}

	registry := NewRegistry(deps.Users)
	rooms := NewRooms()
	typing := NewTyping(rooms)
	scheduler := NewScheduler()

	groups := NewGroupService(deps.Groups, deps.Messages, deps.Users, registry, rooms, typing, deps.Audit,
		GroupPolicy{AdminsCanAddMembers: opts.AdminsCanAddMembers})
	messages := NewMessageService(deps.Groups, deps.Messages, deps.Users, registry, rooms, typing, scheduler, deps.Audit,
		opts.DeliveryDelay)
	messages.groupLock = groups.locks

	return &Core{
		Registry:  registry,
		Rooms:     rooms,
		Typing:    typing,
		Scheduler: scheduler,
		Groups:    groups,
		Messages:  messages,
		Gateway:   NewGateway(registry, rooms, typing, groups, messages, deps.Verifier),
	}
}

// Shutdown cancels pending delivery tasks.
func (c *Core) Shutdown() {
	c.Scheduler.Stop()
}
