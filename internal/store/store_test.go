package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenClose(t *testing.T) {
	s := tempStore(t)
	if s.db == nil {
		t.Fatal("db should not be nil")
	}
}

func TestOpenCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		t.Fatal("directory should have been created")
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	if got := DefaultDataDir(); got != "/tmp/xdg/nwc-go" {
		t.Fatalf("got %s", got)
	}
	if got := DefaultPath(); got != "/tmp/xdg/nwc-go/nwc.db" {
		t.Fatalf("got %s", got)
	}
}

func TestConnectionURI(t *testing.T) {
	s := tempStore(t)

	uri, err := s.LoadConnectionURI()
	if err != nil {
		t.Fatal(err)
	}
	if uri != "" {
		t.Fatalf("expected empty uri, got %q", uri)
	}

	if err := s.SaveConnectionURI("nostr+walletconnect://a"); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveConnectionURI("nostr+walletconnect://b"); err != nil {
		t.Fatal(err)
	}
	uri, err = s.LoadConnectionURI()
	if err != nil {
		t.Fatal(err)
	}
	if uri != "nostr+walletconnect://b" {
		t.Fatalf("got %q", uri)
	}

	if err := s.ClearConnectionURI(); err != nil {
		t.Fatal(err)
	}
	uri, err = s.LoadConnectionURI()
	if err != nil {
		t.Fatal(err)
	}
	if uri != "" {
		t.Fatalf("expected empty uri after clear, got %q", uri)
	}

	// Clearing twice is fine.
	if err := s.ClearConnectionURI(); err != nil {
		t.Fatal(err)
	}
}

func TestConnectionURISurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveConnectionURI("nostr+walletconnect://x"); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	uri, err := s.LoadConnectionURI()
	if err != nil {
		t.Fatal(err)
	}
	if uri != "nostr+walletconnect://x" {
		t.Fatalf("got %q", uri)
	}
}

func TestNotifications(t *testing.T) {
	s := tempStore(t)
	base := time.UnixMilli(1700000000000)

	for i := range 5 {
		n := &Notification{
			EventID:     fmt.Sprintf("ev%d", i),
			Type:        "payment_received",
			PaymentHash: fmt.Sprintf("hash%d", i),
			Amount:      int64(1000 * (i + 1)),
			ReceivedAt:  base.Add(time.Duration(i) * time.Second),
			Payload:     []byte(`{"amount":1}`),
		}
		if err := s.SaveNotification(n); err != nil {
			t.Fatal(err)
		}
	}
	// Duplicate event ids are ignored.
	if err := s.SaveNotification(&Notification{EventID: "ev0", Type: "payment_sent", ReceivedAt: base.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	got, err := s.RecentNotifications(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d notifications, want 3", len(got))
	}
	for i, want := range []string{"ev4", "ev3", "ev2"} {
		if got[i].EventID != want {
			t.Fatalf("notification %d: got %s, want %s", i, got[i].EventID, want)
		}
	}
	if got[0].Amount != 5000 || got[0].PaymentHash != "hash4" || !got[0].ReceivedAt.Equal(base.Add(4*time.Second)) {
		t.Fatalf("unexpected row: %+v", got[0])
	}
	if string(got[0].Payload) != `{"amount":1}` {
		t.Fatalf("payload: %s", got[0].Payload)
	}

	all, err := s.RecentNotifications(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 5 || all[4].Type != "payment_received" {
		t.Fatalf("duplicate handling: %d rows, oldest type %s", len(all), all[len(all)-1].Type)
	}

	removed, err := s.PruneNotifications(2)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Fatalf("pruned %d, want 3", removed)
	}
	all, err = s.RecentNotifications(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].EventID != "ev4" || all[1].EventID != "ev3" {
		t.Fatalf("after prune: %+v", all)
	}
}
