package models

// UserPatch is a partial profile update. Nil fields are left untouched.
type UserPatch struct {
	Email     *string
	Photo     *string
	FirstName *string
	LastName  *string
}

func (p UserPatch) IsEmpty() bool {
	return p.Email == nil && p.Photo == nil && p.FirstName == nil && p.LastName == nil
}

// Apply copies the present fields onto u.
func (p UserPatch) Apply(u *User) {
	if p.Email != nil {
		u.Email = cloneString(p.Email)
	}
	if p.Photo != nil {
		u.Photo = cloneString(p.Photo)
	}
	if p.FirstName != nil {
		u.FirstName = cloneString(p.FirstName)
	}
	if p.LastName != nil {
		u.LastName = cloneString(p.LastName)
	}
}

// Columns returns the present fields keyed by SQL column name.
func (p UserPatch) Columns() map[string]any {
	cols := make(map[string]any, 4)
	if p.Email != nil {
		cols["email"] = *p.Email
	}
	if p.Photo != nil {
		cols["photo"] = *p.Photo
	}
	if p.FirstName != nil {
		cols["first_name"] = *p.FirstName
	}
	if p.LastName != nil {
		cols["last_name"] = *p.LastName
	}
	return cols
}
