package credentials

import (
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/openclaw/a2a/pkg/crypto"
	"github.com/openclaw/a2a/pkg/types/a2a"
)

// ContactStatus is the last observed reachability of a peer.
type ContactStatus string

const (
	ContactUnknown ContactStatus = "unknown"
	ContactOnline  ContactStatus = "online"
	ContactOffline ContactStatus = "offline"
	ContactError   ContactStatus = "error"
)

// InboundHost is the placeholder host for contacts we only know as
// inbound callers. Such contacts carry no stored token.
const InboundHost = "inbound"

// Contact is a known remote peer. For outbound peers the entry stores
// the peer's token obfuscated at rest; (Host, TokenHash) uniquely
// identifies an outbound entry.
type Contact struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Owner           string            `json:"owner,omitempty"`
	Host            string            `json:"host"`
	TokenHash       string            `json:"token_hash,omitempty"`
	TokenCiphertext string            `json:"token_ciphertext,omitempty"`
	Tags            []string          `json:"tags,omitempty"`
	Fields          map[string]string `json:"fields,omitempty"`
	LinkedTokenID   string            `json:"linked_token_id,omitempty"`
	Status          ContactStatus     `json:"status"`
	LastSeen        *time.Time        `json:"last_seen,omitempty"`
	LastError       string            `json:"last_error,omitempty"`
	AddedAt         time.Time         `json:"added_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	IsMine          bool              `json:"is_mine"`
}

// ParseInviteURL parses an a2a://<host>[:port]/<token> invite. The
// legacy oclaw:// scheme is accepted on read but never emitted. The
// token part is opaque and may itself contain slashes.
func ParseInviteURL(raw string) (host, token string, err error) {
	rest := ""
	switch {
	case strings.HasPrefix(raw, "a2a://"):
		rest = raw[len("a2a://"):]
	case strings.HasPrefix(raw, "oclaw://"):
		rest = raw[len("oclaw://"):]
	default:
		return "", "", errors.Errorf("invalid invite URL: expected a2a://host/token")
	}

	host, token, ok := strings.Cut(rest, "/")
	if !ok || host == "" || token == "" {
		return "", "", errors.Errorf("invalid invite URL: expected a2a://host/token")
	}
	return host, token, nil
}

// FormatInviteURL renders an invite for the current scheme.
func FormatInviteURL(host, token string) string {
	return "a2a://" + host + "/" + token
}

// AddContactOptions carry the optional metadata for a new contact.
type AddContactOptions struct {
	Name   string
	Owner  string
	Tags   []string
	Fields map[string]string
	IsMine bool
}

// AddContact parses an invite URL and records the peer. Duplicate
// (host, token_hash) pairs are refused.
func (s *Store) AddContact(inviteURL string, opts AddContactOptions) (*Contact, error) {
	host, token, err := ParseInviteURL(inviteURL)
	if err != nil {
		return nil, err
	}
	hash := crypto.HashToken(token)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.state.Contacts {
		if c.Host == host && c.TokenHash == hash {
			return nil, errors.Errorf("contact already exists for %s", host)
		}
	}

	id, err := crypto.RandomString(9)
	if err != nil {
		return nil, err
	}
	now := s.now()
	contact := &Contact{
		ID:              "contact_" + id,
		Name:            opts.Name,
		Owner:           opts.Owner,
		Host:            host,
		TokenHash:       hash,
		TokenCiphertext: crypto.Obfuscate(token, s.key),
		Tags:            opts.Tags,
		Fields:          opts.Fields,
		Status:          ContactUnknown,
		AddedAt:         now,
		UpdatedAt:       now,
		IsMine:          opts.IsMine,
	}
	s.state.Contacts = append(s.state.Contacts, contact)
	if err := s.save(); err != nil {
		s.state.Contacts = s.state.Contacts[:len(s.state.Contacts)-1]
		return nil, err
	}
	out := *contact
	return &out, nil
}

// EnsureInboundContact upserts the placeholder contact for an inbound
// caller identified by the token it used. An existing outbound contact
// linked to the same token wins; otherwise a host="inbound" placeholder
// is created or refreshed.
func (s *Store) EnsureInboundContact(caller a2a.Caller, tokenID string) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, c := range s.state.Contacts {
		if c.LinkedTokenID != tokenID {
			continue
		}
		if caller.Name != "" {
			c.Name = caller.Name
		}
		if caller.Owner != "" {
			c.Owner = caller.Owner
		}
		c.LastSeen = &now
		c.UpdatedAt = now
		if err := s.save(); err != nil {
			return nil, err
		}
		out := *c
		return &out, nil
	}

	id, err := crypto.RandomString(9)
	if err != nil {
		return nil, err
	}
	name := caller.Name
	if name == "" {
		name = "unknown caller"
	}
	contact := &Contact{
		ID:            "contact_" + id,
		Name:          name,
		Owner:         caller.Owner,
		Host:          InboundHost,
		Tags:          []string{"inbound"},
		LinkedTokenID: tokenID,
		Status:        ContactUnknown,
		LastSeen:      &now,
		AddedAt:       now,
		UpdatedAt:     now,
	}
	s.state.Contacts = append(s.state.Contacts, contact)
	if err := s.save(); err != nil {
		s.state.Contacts = s.state.Contacts[:len(s.state.Contacts)-1]
		return nil, err
	}
	out := *contact
	return &out, nil
}

// LinkTokenToContact records which of our tokens a contact holds.
func (s *Store) LinkTokenToContact(contactID, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.state.Contacts {
		if c.ID == contactID {
			c.LinkedTokenID = tokenID
			c.UpdatedAt = s.now()
			return s.save()
		}
	}
	return errors.Errorf("contact not found: %s", contactID)
}

// ContactUpdate carries the mutable contact fields; nil means leave
// unchanged.
type ContactUpdate struct {
	Name   *string
	Owner  *string
	Tags   []string
	Fields map[string]string
}

// UpdateContact applies a partial update.
func (s *Store) UpdateContact(contactID string, update ContactUpdate) (*Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.state.Contacts {
		if c.ID != contactID {
			continue
		}
		if update.Name != nil {
			c.Name = *update.Name
		}
		if update.Owner != nil {
			c.Owner = *update.Owner
		}
		if update.Tags != nil {
			c.Tags = update.Tags
		}
		if update.Fields != nil {
			c.Fields = update.Fields
		}
		c.UpdatedAt = s.now()
		if err := s.save(); err != nil {
			return nil, err
		}
		out := *c
		return &out, nil
	}
	return nil, errors.Errorf("contact not found: %s", contactID)
}

// RemoveContact deletes a contact.
func (s *Store) RemoveContact(contactID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.state.Contacts {
		if c.ID == contactID {
			s.state.Contacts = append(s.state.Contacts[:i], s.state.Contacts[i+1:]...)
			return s.save()
		}
	}
	return errors.Errorf("contact not found: %s", contactID)
}

// UpdateContactStatus records the outcome of a reachability check.
func (s *Store) UpdateContactStatus(contactID string, status ContactStatus, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.state.Contacts {
		if c.ID != contactID {
			continue
		}
		now := s.now()
		c.Status = status
		c.LastError = lastError
		if status == ContactOnline {
			c.LastSeen = &now
		}
		c.UpdatedAt = now
		return s.save()
	}
	return errors.Errorf("contact not found: %s", contactID)
}

// ListContacts returns copies of all contacts.
func (s *Store) ListContacts() []*Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Contact, 0, len(s.state.Contacts))
	for _, c := range s.state.Contacts {
		copied := *c
		out = append(out, &copied)
	}
	return out
}

// ContactToken returns the decrypted peer token for an outbound
// contact.
func (s *Store) ContactToken(contactID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.state.Contacts {
		if c.ID != contactID {
			continue
		}
		if c.TokenCiphertext == "" {
			return "", errors.Errorf("contact %s has no stored token", contactID)
		}
		return crypto.Deobfuscate(c.TokenCiphertext, s.key)
	}
	return "", errors.Errorf("contact not found: %s", contactID)
}
