package app

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"inkwell/api/internal/perm"
	"inkwell/api/internal/store"
)

const (
	TicketStatusOpen      = "open"
	TicketStatusResponded = "responded"
	TicketStatusClosed    = "closed"
)

type SubmitTicketInput struct {
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// SubmitTicket accepts a support request from anyone, signed in or not.
// Guests are recorded under the "guest" submitter so suspended or locked-out
// users still have a channel in.
func (s *Service) SubmitTicket(ctx context.Context, session *Session, in SubmitTicketInput) (store.SupportTicket, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)
	if in.Subject == "" {
		return store.SupportTicket{}, invalidInput("subject is required")
	}
	if in.Message == "" {
		return store.SupportTicket{}, invalidInput("message is required")
	}

	submitter := "guest"
	suspended := false
	if session != nil {
		submitter = session.Email
		if account, err := s.store.GetAccount(ctx, session.AccountID); err == nil {
			suspended = account.Permissions.Suspended
		}
	}

	now := s.now().UTC()
	ticket := store.SupportTicket{
		ID:             uuid.NewString(),
		Subject:        in.Subject,
		Message:        in.Message,
		SubmitterEmail: submitter,
		IsSuspended:    suspended,
		Status:         TicketStatusOpen,
		Responses:      []store.TicketResponse{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertTicket(ctx, ticket); err != nil {
		return store.SupportTicket{}, s.storeErr(err, "insert ticket")
	}
	return ticket, nil
}

// ReplyTicket appends a response. An admin reply marks the ticket as
// responded; a submitter reply leaves the status alone and is rejected
// outright once the ticket is closed.
func (s *Service) ReplyTicket(ctx context.Context, session Session, ticketID, text string) (store.SupportTicket, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return store.SupportTicket{}, invalidInput("reply text is required")
	}
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.SupportTicket{}, notFound("ticket", ticketID)
		}
		return store.SupportTicket{}, s.storeErr(err, "load ticket")
	}
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return store.SupportTicket{}, err
	}

	now := s.now().UTC()
	var response store.TicketResponse
	status := ticket.Status
	switch {
	case perm.CanManageSupportTicket(actor).Allowed:
		response = store.TicketResponse{
			Text:       text,
			From:       "admin",
			AdminEmail: actor.Email,
			Timestamp:  now,
		}
		status = TicketStatusResponded
	case actor.Email == ticket.SubmitterEmail:
		if ticket.Status == TicketStatusClosed {
			return store.SupportTicket{}, ticketClosed()
		}
		response = store.TicketResponse{
			Text:      text,
			From:      "user",
			Timestamp: now,
		}
	default:
		return store.SupportTicket{}, permissionDenied(perm.Decision{Reason: perm.ReasonNotOwnerOrAdmin})
	}

	if err := s.store.AppendTicketResponse(ctx, ticket.ID, response, status, now); err != nil {
		return store.SupportTicket{}, s.storeErr(err, "append ticket response")
	}
	ticket.Responses = append(ticket.Responses, response)
	ticket.Status = status
	ticket.UpdatedAt = now
	return ticket, nil
}

func (s *Service) CloseTicket(ctx context.Context, session Session, ticketID string) error {
	return s.setTicketStatus(ctx, session, ticketID, TicketStatusClosed)
}

func (s *Service) ReopenTicket(ctx context.Context, session Session, ticketID string) error {
	return s.setTicketStatus(ctx, session, ticketID, TicketStatusOpen)
}

func (s *Service) setTicketStatus(ctx context.Context, session Session, ticketID, status string) error {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return err
	}
	if d := perm.CanManageSupportTicket(actor); !d.Allowed {
		return permissionDenied(d)
	}
	if _, err := s.store.GetTicket(ctx, ticketID); err != nil {
		if store.IsNotFound(err) {
			return notFound("ticket", ticketID)
		}
		return s.storeErr(err, "load ticket")
	}
	if err := s.store.UpdateTicketStatus(ctx, ticketID, status, s.now().UTC()); err != nil {
		return s.storeErr(err, "update ticket status")
	}
	return nil
}

func (s *Service) GetTicket(ctx context.Context, session Session, ticketID string) (store.SupportTicket, error) {
	ticket, err := s.store.GetTicket(ctx, ticketID)
	if err != nil {
		if store.IsNotFound(err) {
			return store.SupportTicket{}, notFound("ticket", ticketID)
		}
		return store.SupportTicket{}, s.storeErr(err, "load ticket")
	}
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return store.SupportTicket{}, err
	}
	if !perm.CanManageSupportTicket(actor).Allowed && actor.Email != ticket.SubmitterEmail {
		return store.SupportTicket{}, permissionDenied(perm.Decision{Reason: perm.ReasonNotOwnerOrAdmin})
	}
	return ticket, nil
}

func (s *Service) ListTickets(ctx context.Context, session Session) ([]store.SupportTicket, error) {
	actor, _, err := s.actorFor(ctx, session)
	if err != nil {
		return nil, err
	}
	if d := perm.CanManageSupportTicket(actor); !d.Allowed {
		return nil, permissionDenied(d)
	}
	tickets, err := s.store.ListTickets(ctx)
	if err != nil {
		return nil, s.storeErr(err, "list tickets")
	}
	return tickets, nil
}
