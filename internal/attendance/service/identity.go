package service

import (
	"context"
	"strings"

	"rollcall/internal/attendance/models"
	id "rollcall/pkg/domain"
	dErrors "rollcall/pkg/domain-errors"
)

// IdentityInput carries the channel-specific identifier. Which fields are
// read depends on the channel:
//
//	MANUAL, MOBILE  MemberID or Visitor
//	RFID, NFC       CardID
//	QR_CODE         QRToken plus MemberID or Visitor
type IdentityInput struct {
	SessionID id.SessionID
	MemberID  *id.MemberID
	Visitor   *models.Visitor
	CardID    string
	QRToken   string
}

// ResolveIdentity turns a channel identifier into exactly one member or
// visitor. Rejection is an error: NotFound for unknown members, cards and
// tokens, Expired for stale tokens, Validation for malformed input.
func (s *Service) ResolveIdentity(ctx context.Context, channel models.CheckInMethod, in IdentityInput) (models.ResolvedIdentity, error) {
	switch channel {
	case models.MethodManual, models.MethodMobile:
		return s.resolveDirect(ctx, in.MemberID, in.Visitor)
	case models.MethodRFID, models.MethodNFC:
		session, err := s.loadSession(ctx, in.SessionID)
		if err != nil {
			return models.ResolvedIdentity{}, err
		}
		member, err := s.resolveCard(ctx, session.OrganisationID, in.CardID)
		if err != nil {
			return models.ResolvedIdentity{}, err
		}
		return models.MemberIdentity(member), nil
	case models.MethodQRCode:
		session, err := s.ValidateToken(ctx, in.QRToken)
		if err != nil {
			return models.ResolvedIdentity{}, err
		}
		if session.ID != in.SessionID {
			return models.ResolvedIdentity{}, dErrors.New(dErrors.CodeValidation, "qr token is not valid for this session")
		}
		return s.resolveDirect(ctx, in.MemberID, in.Visitor)
	default:
		return models.ResolvedIdentity{}, dErrors.New(dErrors.CodeValidation, "unknown check-in method")
	}
}

func (s *Service) resolveDirect(ctx context.Context, memberID *id.MemberID, visitor *models.Visitor) (models.ResolvedIdentity, error) {
	hasVisitor := visitor != nil && strings.TrimSpace(visitor.Name) != ""
	switch {
	case memberID != nil && visitor != nil:
		return models.ResolvedIdentity{}, dErrors.New(dErrors.CodeValidation, "provide either member_id or visitor, not both")
	case memberID != nil:
		member, err := s.loadMember(ctx, *memberID)
		if err != nil {
			return models.ResolvedIdentity{}, err
		}
		return models.MemberIdentity(member), nil
	case hasVisitor:
		return models.VisitorIdentity(*visitor), nil
	default:
		return models.ResolvedIdentity{}, dErrors.New(dErrors.CodeValidation, "member_id or visitor name is required")
	}
}

// resolveCard looks a card up against Member.RFIDCardID, the one canonical
// card attribute for both RFID and NFC readers.
func (s *Service) resolveCard(ctx context.Context, orgID id.OrganisationID, cardID string) (*models.Member, error) {
	cardID = strings.TrimSpace(cardID)
	if cardID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "card_id is required")
	}
	member, err := s.directory.FindMemberByCardID(ctx, orgID, cardID)
	if err != nil {
		if dErrors.HasCode(wrapStoreErr(err, "member"), dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no member owns this card")
		}
		return nil, wrapStoreErr(err, "member")
	}
	return member, nil
}
