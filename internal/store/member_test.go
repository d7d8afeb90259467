package store

import (
	"testing"

	"github.com/hearthside/chorebank/internal/model"
)

func TestMemberCRUD(t *testing.T) {
	_, ms, _ := setupTestDB(t)

	member, err := ms.Create("Maya", "#ff8800", "🦊", model.RoleKid)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if member.Name != "Maya" || member.Role != model.RoleKid || !member.Active {
		t.Errorf("member = %+v", member)
	}
	if member.Role.Privileged() {
		t.Error("kid role should not be privileged")
	}

	updated, err := ms.Update(member.ID, "Maya R", "#ff8800", "🦊", model.RoleParent, false)
	if err != nil {
		t.Fatalf("update member: %v", err)
	}
	if updated.Name != "Maya R" || updated.Role != model.RoleParent || updated.Active {
		t.Errorf("updated = %+v", updated)
	}
	if !updated.Role.Privileged() {
		t.Error("parent role should be privileged")
	}

	if err := ms.Delete(member.ID); err != nil {
		t.Fatalf("delete member: %v", err)
	}
	got, err := ms.GetByID(member.ID)
	if err != nil {
		t.Fatalf("get after delete: %v", err)
	}
	if got != nil {
		t.Error("member still present after delete")
	}
}

func TestListActiveFiltersInactive(t *testing.T) {
	_, ms, _ := setupTestDB(t)

	active, err := ms.Create("Ana", "", "", model.RoleParent)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	retired, err := ms.Create("Theo", "", "", model.RoleKid)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if _, err := ms.Update(retired.ID, retired.Name, "", "", retired.Role, false); err != nil {
		t.Fatalf("deactivate member: %v", err)
	}

	members, err := ms.ListActive()
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(members) != 1 || members[0].ID != active.ID {
		t.Errorf("active members = %+v, want just %d", members, active.ID)
	}
}

func TestPINLifecycle(t *testing.T) {
	_, ms, _ := setupTestDB(t)

	member, err := ms.Create("Ana", "", "", model.RoleParent)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	hash, err := ms.GetPINHash(member.ID)
	if err != nil {
		t.Fatalf("get pin hash: %v", err)
	}
	if hash != "" {
		t.Errorf("fresh member has pin hash %q", hash)
	}

	if err := ms.SetPIN(member.ID, "bcrypt-hash-here"); err != nil {
		t.Fatalf("set pin: %v", err)
	}
	hash, err = ms.GetPINHash(member.ID)
	if err != nil {
		t.Fatalf("get pin hash: %v", err)
	}
	if hash != "bcrypt-hash-here" {
		t.Errorf("pin hash = %q", hash)
	}

	if err := ms.ClearPIN(member.ID); err != nil {
		t.Fatalf("clear pin: %v", err)
	}
	hash, err = ms.GetPINHash(member.ID)
	if err != nil {
		t.Fatalf("get pin hash: %v", err)
	}
	if hash != "" {
		t.Errorf("cleared pin hash = %q", hash)
	}
}
