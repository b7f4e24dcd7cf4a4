// Package signinglinks models issuing, regenerating and reading the public
// signing link of one signer slot.
//
// Every slot keeps the history of codes it has seen. A regenerated link must
// carry a code that differs from all of them; the older codes are recorded
// as invalidated so negative tests can try them against the public page.
package signinglinks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"signflow/internal/crm"
	"signflow/pkg/logging"
)

var (
	// ErrInvalidLink is returned for a link that does not match the public
	// URL pattern or does not bind the requested slot.
	ErrInvalidLink = errors.New("invalid signing link")
	// ErrInvalidCode is returned for a code that is not exactly 6 digits.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrCodeReused is returned when regeneration hands out a code the slot
	// has already seen.
	ErrCodeReused = errors.New("regenerated code was issued before")
)

// API is the part of the REST client the lifecycle uses. *crm.Client
// implements it.
type API interface {
	CreateSigningLink(ctx context.Context, agreementID string, signerIndex int) (crm.SigningLink, error)
	RegenerateSigningLink(ctx context.Context, agreementID string, signerIndex int) (crm.SigningLink, error)
	GetSigningLink(ctx context.Context, agreementID string, signerIndex int) (crm.SigningLink, error)
}

// Slot identifies one signer's link. SignerIndex is 0-based in routing
// order.
type Slot struct {
	AgreementID string
	SignerIndex int
}

func (s Slot) String() string { return fmt.Sprintf("%s/signer[%d]", s.AgreementID, s.SignerIndex) }

// Lifecycle tracks the links of any number of slots.
type Lifecycle struct {
	api         API
	workspaceID string

	mu          sync.Mutex
	codes       map[Slot][]string
	invalidated map[Slot][]string
}

// New creates a lifecycle over api. Links are checked against workspaceID.
func New(api API, workspaceID string) *Lifecycle {
	return &Lifecycle{
		api:         api,
		workspaceID: workspaceID,
		codes:       make(map[Slot][]string),
		invalidated: make(map[Slot][]string),
	}
}

// Generate issues the link of a slot.
func (l *Lifecycle) Generate(ctx context.Context, slot Slot) (crm.SigningLink, error) {
	link, err := l.api.CreateSigningLink(ctx, slot.AgreementID, slot.SignerIndex)
	if err != nil {
		return crm.SigningLink{}, fmt.Errorf("failed to generate link for %s: %w", slot, err)
	}
	if err := l.Validate(slot, link); err != nil {
		return crm.SigningLink{}, err
	}
	link.SignerIndex = slot.SignerIndex
	l.remember(slot, link.Code)
	logging.Info("SigningLinks", "Generated link for %s", slot)
	return link, nil
}

// Regenerate issues a new link for a slot that already has one. The new code
// must differ from every code the slot has had.
func (l *Lifecycle) Regenerate(ctx context.Context, slot Slot) (crm.SigningLink, error) {
	if len(l.history(slot)) == 0 {
		existing, err := l.GetExisting(ctx, slot)
		if err != nil {
			return crm.SigningLink{}, err
		}
		if existing != nil {
			l.remember(slot, existing.Code)
		}
	}

	link, err := l.api.RegenerateSigningLink(ctx, slot.AgreementID, slot.SignerIndex)
	if err != nil {
		return crm.SigningLink{}, fmt.Errorf("failed to regenerate link for %s: %w", slot, err)
	}
	if err := l.Validate(slot, link); err != nil {
		return crm.SigningLink{}, err
	}
	link.SignerIndex = slot.SignerIndex

	l.mu.Lock()
	defer l.mu.Unlock()
	prior := l.codes[slot]
	if slices.Contains(prior, link.Code) {
		return crm.SigningLink{}, fmt.Errorf("%w: %s for %s", ErrCodeReused, link.Code, slot)
	}
	for _, c := range prior {
		if !slices.Contains(l.invalidated[slot], c) {
			l.invalidated[slot] = append(l.invalidated[slot], c)
		}
	}
	l.codes[slot] = append(prior, link.Code)
	logging.Info("SigningLinks", "Regenerated link for %s, %d code(s) invalidated", slot, len(l.invalidated[slot]))
	return link, nil
}

// GetExisting returns the current link of a slot, or nil when none has been
// issued. It never issues or changes a link.
func (l *Lifecycle) GetExisting(ctx context.Context, slot Slot) (*crm.SigningLink, error) {
	link, err := l.api.GetSigningLink(ctx, slot.AgreementID, slot.SignerIndex)
	if crm.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read link for %s: %w", slot, err)
	}
	if err := l.Validate(slot, link); err != nil {
		return nil, err
	}
	link.SignerIndex = slot.SignerIndex
	return &link, nil
}

// InvalidatedCodes returns the codes a slot had before its last
// regeneration, oldest first.
func (l *Lifecycle) InvalidatedCodes(slot Slot) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.invalidated[slot])
}

// Validate checks that link is a well-formed public link for slot.
func (l *Lifecycle) Validate(slot Slot, link crm.SigningLink) error {
	su, err := crm.ParseSigningURL(link.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	switch {
	case su.AgreementID != slot.AgreementID:
		return fmt.Errorf("%w: url binds agreement %s, want %s", ErrInvalidLink, su.AgreementID, slot.AgreementID)
	case l.workspaceID != "" && su.WorkspaceID != l.workspaceID:
		return fmt.Errorf("%w: url binds workspace %s, want %s", ErrInvalidLink, su.WorkspaceID, l.workspaceID)
	case link.AgreementID != "" && link.AgreementID != slot.AgreementID:
		return fmt.Errorf("%w: response is for agreement %s", ErrInvalidLink, link.AgreementID)
	case link.SignerIndex != crm.UnknownSignerIndex && link.SignerIndex != slot.SignerIndex:
		return fmt.Errorf("%w: response is for signer %d", ErrInvalidLink, link.SignerIndex)
	case link.Token != "" && su.Token != link.Token:
		return fmt.Errorf("%w: url token does not match the issued token", ErrInvalidLink)
	}
	if !crm.ValidCode(link.Code) {
		return fmt.Errorf("%w: %q", ErrInvalidCode, link.Code)
	}
	return nil
}

func (l *Lifecycle) history(slot Slot) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.codes[slot]
}

func (l *Lifecycle) remember(slot Slot, code string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !slices.Contains(l.codes[slot], code) {
		l.codes[slot] = append(l.codes[slot], code)
	}
}
