package credentials

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/a2a/pkg/types/a2a"
)

func TestParseInviteURL(t *testing.T) {
	host, token, err := ParseInviteURL("a2a://agent.example.com:3001/fed_abc123")
	require.NoError(t, err)
	assert.Equal(t, "agent.example.com:3001", host)
	assert.Equal(t, "fed_abc123", token)
}

func TestParseInviteURLLegacyScheme(t *testing.T) {
	host, token, err := ParseInviteURL("oclaw://old.example.com/fed_xyz")
	require.NoError(t, err)
	assert.Equal(t, "old.example.com", host)
	assert.Equal(t, "fed_xyz", token)
}

func TestParseInviteURLTokenMayContainSlashes(t *testing.T) {
	_, token, err := ParseInviteURL("a2a://h.example.com/fed_a/b/c")
	require.NoError(t, err)
	assert.Equal(t, "fed_a/b/c", token)
}

func TestParseInviteURLRejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		"https://example.com/fed_abc",
		"a2a://hostonly",
		"a2a:///fed_abc",
		"a2a://host/",
		"",
	} {
		_, _, err := ParseInviteURL(raw)
		assert.Error(t, err, "input %q", raw)
	}
}

func TestFormatInviteURLRoundTrip(t *testing.T) {
	url := FormatInviteURL("peer.example.com:8443", "fed_tok")
	host, token, err := ParseInviteURL(url)
	require.NoError(t, err)
	assert.Equal(t, "peer.example.com:8443", host)
	assert.Equal(t, "fed_tok", token)
}

func TestAddContact(t *testing.T) {
	store := newTestStore(t)

	contact, err := store.AddContact("a2a://peer.example.com/fed_secret", AddContactOptions{
		Name: "peer agent",
		Tags: []string{"research"},
	})
	require.NoError(t, err)

	assert.Contains(t, contact.ID, "contact_")
	assert.Equal(t, "peer.example.com", contact.Host)
	assert.Equal(t, ContactUnknown, contact.Status)
	assert.NotEmpty(t, contact.TokenCiphertext)
	assert.NotEqual(t, "fed_secret", contact.TokenCiphertext)

	// The stored file never holds the peer token in the clear.
	data, err := os.ReadFile(store.path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "fed_secret")

	token, err := store.ContactToken(contact.ID)
	require.NoError(t, err)
	assert.Equal(t, "fed_secret", token)
}

func TestAddContactRefusesDuplicate(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AddContact("a2a://peer.example.com/fed_secret", AddContactOptions{Name: "a"})
	require.NoError(t, err)
	_, err = store.AddContact("a2a://peer.example.com/fed_secret", AddContactOptions{Name: "b"})
	assert.Error(t, err)

	// Same host with a different token is a distinct contact.
	_, err = store.AddContact("a2a://peer.example.com/fed_other", AddContactOptions{Name: "c"})
	assert.NoError(t, err)
}

func TestEnsureInboundContactCreatesPlaceholder(t *testing.T) {
	store := newTestStore(t)

	contact, err := store.EnsureInboundContact(a2a.Caller{Name: "visitor", Owner: "carol"}, "tok_1")
	require.NoError(t, err)

	assert.Equal(t, InboundHost, contact.Host)
	assert.Equal(t, "visitor", contact.Name)
	assert.Equal(t, "carol", contact.Owner)
	assert.Equal(t, []string{"inbound"}, contact.Tags)
	assert.Equal(t, "tok_1", contact.LinkedTokenID)
	assert.Empty(t, contact.TokenCiphertext)
}

func TestEnsureInboundContactAnonymousCaller(t *testing.T) {
	store := newTestStore(t)

	contact, err := store.EnsureInboundContact(a2a.Caller{}, "tok_2")
	require.NoError(t, err)
	assert.Equal(t, "unknown caller", contact.Name)
}

func TestEnsureInboundContactRefreshesExisting(t *testing.T) {
	store := newTestStore(t)

	first, err := store.EnsureInboundContact(a2a.Caller{Name: "visitor"}, "tok_3")
	require.NoError(t, err)

	second, err := store.EnsureInboundContact(a2a.Caller{Name: "visitor renamed"}, "tok_3")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "visitor renamed", second.Name)
	assert.Len(t, store.ListContacts(), 1)
}

func TestEnsureInboundContactPrefersLinkedOutbound(t *testing.T) {
	store := newTestStore(t)

	outbound, err := store.AddContact("a2a://peer.example.com/fed_secret", AddContactOptions{Name: "peer"})
	require.NoError(t, err)
	require.NoError(t, store.LinkTokenToContact(outbound.ID, "tok_4"))

	contact, err := store.EnsureInboundContact(a2a.Caller{Name: "peer live"}, "tok_4")
	require.NoError(t, err)
	assert.Equal(t, outbound.ID, contact.ID)
	assert.Equal(t, "peer.example.com", contact.Host)
	assert.Len(t, store.ListContacts(), 1)
}

func TestUpdateAndRemoveContact(t *testing.T) {
	store := newTestStore(t)

	contact, err := store.AddContact("a2a://peer.example.com/fed_secret", AddContactOptions{Name: "old name"})
	require.NoError(t, err)

	newName := "new name"
	updated, err := store.UpdateContact(contact.ID, ContactUpdate{Name: &newName})
	require.NoError(t, err)
	assert.Equal(t, "new name", updated.Name)

	require.NoError(t, store.UpdateContactStatus(contact.ID, ContactOnline, ""))
	contacts := store.ListContacts()
	require.Len(t, contacts, 1)
	assert.Equal(t, ContactOnline, contacts[0].Status)
	assert.NotNil(t, contacts[0].LastSeen)

	require.NoError(t, store.RemoveContact(contact.ID))
	assert.Empty(t, store.ListContacts())

	assert.Error(t, store.RemoveContact(contact.ID))
}
