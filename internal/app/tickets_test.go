package app

import (
	"context"
	"testing"

	"inkwell/api/internal/perm"
	"inkwell/api/internal/store"
)

func TestSubmitTicketAsGuest(t *testing.T) {
	env := newTestEnv()

	ticket, err := env.service.SubmitTicket(context.Background(), nil, SubmitTicketInput{
		Subject: "Locked out",
		Message: "I cannot sign in",
	})
	if err != nil {
		t.Fatalf("SubmitTicket: %v", err)
	}
	if ticket.SubmitterEmail != "guest" {
		t.Fatalf("submitter = %q", ticket.SubmitterEmail)
	}
	if ticket.Status != TicketStatusOpen {
		t.Fatalf("status = %q", ticket.Status)
	}
	if ticket.ID == "" {
		t.Fatal("ticket id missing")
	}
}

func TestSubmitTicketSnapshotsSuspension(t *testing.T) {
	env := newTestEnv()
	perms := perm.DefaultPermissions()
	perms.Suspended = true
	session := env.seedAccount(store.Account{ID: "u1", Email: "suspended@example.com", Permissions: perms})

	ticket, err := env.service.SubmitTicket(context.Background(), &session, SubmitTicketInput{
		Subject: "Appeal",
		Message: "Please review my suspension",
	})
	if err != nil {
		t.Fatalf("SubmitTicket: %v", err)
	}
	if !ticket.IsSuspended {
		t.Fatal("suspension snapshot should be recorded")
	}
	if ticket.SubmitterEmail != "suspended@example.com" {
		t.Fatalf("submitter = %q", ticket.SubmitterEmail)
	}
}

func TestTicketReplyFlow(t *testing.T) {
	env := newTestEnv()
	user := env.seedAccount(store.Account{ID: "u1", Email: "user@example.com"})
	admin := env.seedAccount(store.Account{ID: "a1", Email: "admin@example.com", IsAdmin: true})

	ticket, err := env.service.SubmitTicket(context.Background(), &user, SubmitTicketInput{
		Subject: "Question",
		Message: "How do I change my name?",
	})
	if err != nil {
		t.Fatalf("SubmitTicket: %v", err)
	}

	updated, err := env.service.ReplyTicket(context.Background(), admin, ticket.ID, "You can edit it in settings")
	if err != nil {
		t.Fatalf("admin reply: %v", err)
	}
	if updated.Status != TicketStatusResponded {
		t.Fatalf("status after admin reply = %q", updated.Status)
	}
	if updated.Responses[0].From != "admin" || updated.Responses[0].AdminEmail != "admin@example.com" {
		t.Fatalf("response = %+v", updated.Responses[0])
	}

	updated, err = env.service.ReplyTicket(context.Background(), user, ticket.ID, "Thanks, found it")
	if err != nil {
		t.Fatalf("user reply: %v", err)
	}
	if updated.Status != TicketStatusResponded {
		t.Fatalf("user reply must not change status, got %q", updated.Status)
	}
	if updated.Responses[1].From != "user" {
		t.Fatalf("response = %+v", updated.Responses[1])
	}
}

func TestTicketReplyRejectedWhenClosed(t *testing.T) {
	env := newTestEnv()
	user := env.seedAccount(store.Account{ID: "u1", Email: "user@example.com"})
	admin := env.seedAccount(store.Account{ID: "a1", Email: "admin@example.com", IsAdmin: true})

	ticket, err := env.service.SubmitTicket(context.Background(), &user, SubmitTicketInput{
		Subject: "Question",
		Message: "Hello",
	})
	if err != nil {
		t.Fatalf("SubmitTicket: %v", err)
	}
	if err := env.service.CloseTicket(context.Background(), admin, ticket.ID); err != nil {
		t.Fatalf("CloseTicket: %v", err)
	}

	_, err = env.service.ReplyTicket(context.Background(), user, ticket.ID, "One more thing")
	if code := domainCode(t, err); code != "TICKET_CLOSED" {
		t.Fatalf("code = %q", code)
	}

	if err := env.service.ReopenTicket(context.Background(), admin, ticket.ID); err != nil {
		t.Fatalf("ReopenTicket: %v", err)
	}
	if _, err := env.service.ReplyTicket(context.Background(), user, ticket.ID, "One more thing"); err != nil {
		t.Fatalf("reply after reopen: %v", err)
	}
}

func TestTicketReplyStrangerDenied(t *testing.T) {
	env := newTestEnv()
	user := env.seedAccount(store.Account{ID: "u1", Email: "user@example.com"})
	stranger := env.seedAccount(store.Account{ID: "u2", Email: "stranger@example.com"})

	ticket, err := env.service.SubmitTicket(context.Background(), &user, SubmitTicketInput{
		Subject: "Question",
		Message: "Hello",
	})
	if err != nil {
		t.Fatalf("SubmitTicket: %v", err)
	}

	_, err = env.service.ReplyTicket(context.Background(), stranger, ticket.ID, "Butting in")
	if code := domainCode(t, err); code != "PERMISSION_DENIED" {
		t.Fatalf("code = %q", code)
	}
}

func TestTicketManagementAdminOnly(t *testing.T) {
	env := newTestEnv()
	user := env.seedAccount(store.Account{ID: "u1", Email: "user@example.com"})
	ticket, err := env.service.SubmitTicket(context.Background(), &user, SubmitTicketInput{
		Subject: "Question",
		Message: "Hello",
	})
	if err != nil {
		t.Fatalf("SubmitTicket: %v", err)
	}

	if err := env.service.CloseTicket(context.Background(), user, ticket.ID); err == nil {
		t.Fatal("submitter must not close tickets")
	}
	if _, err := env.service.ListTickets(context.Background(), user); err == nil {
		t.Fatal("submitter must not list all tickets")
	}
}
