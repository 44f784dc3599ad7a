package handlers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"studyqa-bot/internal/database"
	"studyqa-bot/internal/database/models"
	"studyqa-bot/internal/onboarding"
	"studyqa-bot/internal/qa"
	"studyqa-bot/internal/session"
	"studyqa-bot/pkg/telegoapi"

	"github.com/mymmrac/telego"
)

// PendingLimit is how many pending questions /admin_questions shows.
const PendingLimit = 10

// CommandFunc handles one command. args is the text after the command name.
type CommandFunc func(ctx context.Context, msg telego.Message, user *models.User, sess *session.Session, args string) error

// Command represents a bot command, mapping the command string to its description key and handler.
type Command struct {
	Command     string      // The command string (e.g., "start").
	Description string      // Locale key of the description shown by /help.
	Handler     CommandFunc // The function to execute when the command is received.

	AdminOnly  bool              // Requires an active admin.
	Permission models.Permission // Requires a specific admin permission.
	Hidden     bool              // Not listed by /help or the Telegram command menu.
}

// Public reports whether the command is available to everyone.
func (c Command) Public() bool {
	return !c.AdminOnly && c.Permission == ""
}

// Deps are the collaborators of MessageHandler.
type Deps struct {
	Bot        telegoapi.BotAPI
	Users      database.UserRepository
	Questions  database.QuestionRepository
	Admins     AdminChecker
	Moderator  Moderator
	Flow       *qa.Flow
	Onboarding *onboarding.Service

	StoreTimeout time.Duration
}

// MessageHandler routes commands, free-form messages and callback queries to
// the onboarding gate, the Q&A flows and the moderation service.
type MessageHandler struct {
	bot        telegoapi.BotAPI
	users      database.UserRepository
	questions  database.QuestionRepository
	admins     AdminChecker
	moderator  Moderator
	flow       *qa.Flow
	onboarding *onboarding.Service

	storeTimeout time.Duration
	commands     []Command

	// async runs long jobs (broadcasts) off the update goroutine.
	async    func(func())
	jobs     sync.WaitGroup
	jobsCtx  context.Context
	stopJobs context.CancelFunc
}

// NewMessageHandler creates a MessageHandler and its command registry.
func NewMessageHandler(deps Deps) (*MessageHandler, error) {
	switch {
	case deps.Bot == nil:
		return nil, errors.New("handlers: bot is nil")
	case deps.Users == nil || deps.Questions == nil:
		return nil, errors.New("handlers: repositories are nil")
	case deps.Admins == nil:
		return nil, errors.New("handlers: admin checker is nil")
	case deps.Moderator == nil || deps.Flow == nil || deps.Onboarding == nil:
		return nil, errors.New("handlers: services are nil")
	}
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = 5 * time.Second
	}

	h := &MessageHandler{
		bot:          deps.Bot,
		users:        deps.Users,
		questions:    deps.Questions,
		admins:       deps.Admins,
		moderator:    deps.Moderator,
		flow:         deps.Flow,
		onboarding:   deps.Onboarding,
		storeTimeout: deps.StoreTimeout,
	}
	h.jobsCtx, h.stopJobs = context.WithCancel(context.Background())
	h.async = h.runJob
	h.commands = []Command{
		{Command: "start", Description: "CmdStartDesc", Handler: h.HandleStart},
		{Command: "help", Description: "CmdHelpDesc", Handler: h.HandleHelp},
		{Command: "ask", Description: "CmdAskDesc", Handler: h.HandleAsk},
		{Command: "cancel", Description: "CmdCancelDesc", Handler: h.HandleCancel},
		{Command: "adminstatus", Description: "CmdAdminStatusDesc", Handler: h.HandleAdminStatus, Hidden: true},

		{Command: "admin", Description: "CmdAdminDesc", Handler: h.HandleAdmin, AdminOnly: true},
		{Command: "admin_questions", Description: "CmdAdminQuestionsDesc", Handler: h.HandleAdminQuestions, Permission: models.PermApproveContent},
		{Command: "admin_stats", Description: "CmdAdminStatsDesc", Handler: h.HandleAdminStats, Permission: models.PermViewStats},
		{Command: "approve", Description: "CmdApproveDesc", Handler: h.HandleApprove, Permission: models.PermApproveContent},
		{Command: "decline", Description: "CmdDeclineDesc", Handler: h.HandleDecline, Permission: models.PermApproveContent},
		{Command: "broadcast", Description: "CmdBroadcastDesc", Handler: h.HandleBroadcast, Permission: models.PermSendBroadcast},
		{Command: "makeadmin", Description: "CmdMakeAdminDesc", Handler: h.HandleMakeAdmin, Permission: models.PermManageUsers},
		{Command: "listadmins", Description: "CmdListAdminsDesc", Handler: h.HandleListAdmins, AdminOnly: true},
		{Command: "admin_export", Description: "CmdAdminExportDesc", Handler: h.HandleAdminExport, Permission: models.PermViewStats},
		{Command: "ban", Description: "CmdBanDesc", Handler: h.HandleBan, Permission: models.PermManageUsers},
		{Command: "unban", Description: "CmdUnbanDesc", Handler: h.HandleUnban, Permission: models.PermManageUsers},
	}
	return h, nil
}

func (h *MessageHandler) runJob(f func()) {
	h.jobs.Add(1)
	go func() {
		defer h.jobs.Done()
		f()
	}()
}

// jobContext derives the context of a background job from the update that
// started it. It outlives the update and is cancelled by Shutdown.
func (h *MessageHandler) jobContext(ctx context.Context) (context.Context, context.CancelFunc) {
	jctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(h.jobsCtx, cancel)
	return jctx, func() {
		stop()
		cancel()
	}
}

// Shutdown cancels background jobs and waits until they have reported back.
func (h *MessageHandler) Shutdown(ctx context.Context) error {
	h.stopJobs()

	done := make(chan struct{})
	go func() {
		h.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("background jobs still running: %w", ctx.Err())
	}
}

// Commands returns the command registry.
func (h *MessageHandler) Commands() []Command {
	return h.commands
}

// GetCommand retrieves the command registered under name.
func (h *MessageHandler) GetCommand(name string) (Command, bool) {
	for _, cmd := range h.commands {
		if cmd.Command == name {
			return cmd, true
		}
	}
	return Command{}, false
}
