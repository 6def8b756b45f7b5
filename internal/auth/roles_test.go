package auth

import "testing"

func TestHasPermissionTotalOrder(t *testing.T) {
	roles := Roles()
	for _, held := range roles {
		for _, required := range roles {
			want := held.Level() >= required.Level()
			if got := HasPermission(held, required); got != want {
				t.Fatalf("HasPermission(%s, %s) = %v, want %v", held, required, got, want)
			}
		}
	}
	if !HasPermission(RolePresident, RoleAdministrator) || !HasPermission(RoleAdministrator, RoleReferee) {
		t.Fatal("expected presidente >= administrador >= arbitro")
	}
	if HasPermission(RoleReferee, RoleAdministrator) {
		t.Fatal("arbitro must not satisfy administrador")
	}
}

func TestHasPermissionUnknownRolesDeny(t *testing.T) {
	cases := []struct {
		held, required Role
	}{
		{"superuser", RoleReferee},
		{"", RoleReferee},
		{RolePresident, "root"},
		{RolePresident, ""},
		{"Presidente", RoleReferee},
	}
	for _, tc := range cases {
		if HasPermission(tc.held, tc.required) {
			t.Fatalf("HasPermission(%q, %q) should deny", tc.held, tc.required)
		}
	}
	if lvl := Role("guest").Level(); lvl != 0 {
		t.Fatalf("unknown role level = %d, want 0", lvl)
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("  Administrador ")
	if err != nil {
		t.Fatalf("ParseRole: %v", err)
	}
	if r != RoleAdministrator {
		t.Fatalf("got %q", r)
	}
	if _, err := ParseRole("admin"); err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestElevated(t *testing.T) {
	if RoleReferee.Elevated() {
		t.Fatal("arbitro is not elevated")
	}
	if !RoleAdministrator.Elevated() || !RolePresident.Elevated() {
		t.Fatal("administrador and presidente are elevated")
	}
}
