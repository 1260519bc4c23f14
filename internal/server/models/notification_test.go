package models

import "testing"

func TestDefaultPreferences_AllowEverything(t *testing.T) {
	prefs := DefaultPreferences("alice")
	for _, notifType := range []NotificationType{
		NotificationShareCreated, NotificationShareAccepted, NotificationShareDeclined,
		NotificationShareRevoked, NotificationShareExpired,
	} {
		if !prefs.Allows(notifType) {
			t.Fatalf("defaults must allow %v", notifType)
		}
	}
}

func TestAllows_UnknownTypeDenied(t *testing.T) {
	prefs := DefaultPreferences("alice")
	if prefs.Allows(NotificationType("mystery")) {
		t.Fatal("unknown type must be denied")
	}
}

func TestAllows_RespectsToggles(t *testing.T) {
	prefs := DefaultPreferences("alice")
	prefs.OnAccepted = false
	if prefs.Allows(NotificationShareAccepted) {
		t.Fatal("disabled category must be denied")
	}
	if !prefs.Allows(NotificationShareDeclined) {
		t.Fatal("other categories must stay enabled")
	}
}

func TestApply_PartialUpdate(t *testing.T) {
	prefs := DefaultPreferences("alice")
	off := false

	next := prefs.Apply(PreferencesUpdate{OnRevoked: &off, EmailEnabled: &off})

	if next.OnRevoked || next.EmailEnabled {
		t.Fatalf("update not applied: %+v", next)
	}
	if !next.OnCreated || !next.PushEnabled {
		t.Fatalf("untouched fields must keep values: %+v", next)
	}
	if !prefs.OnRevoked {
		t.Fatal("Apply must not mutate the receiver")
	}
}
