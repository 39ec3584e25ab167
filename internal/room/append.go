package room

// appendUser appends u to seq, rejecting it unless u.Date is strictly
// greater than the last recorded date (I1, resolved strictly-greater
// per the design notes).
func appendUser(seq []*User, u *User) ([]*User, error) {
	if len(seq) > 0 && u.Date <= seq[len(seq)-1].Date {
		return nil, ErrInvalidUserDate
	}
	return append(seq, u), nil
}

// AddAdminUser appends u to room's admin sequence for its key.
func (rm *Room) AddAdminUser(u *User) error {
	k := keyOf(u.VerifyingKey)
	seq, err := appendUser(rm.Admins[k], u)
	if err != nil {
		return err
	}
	rm.Admins[k] = seq
	return nil
}

// AddUserAdminUser appends u to room's user_admin sequence for its key.
func (rm *Room) AddUserAdminUser(u *User) error {
	k := keyOf(u.VerifyingKey)
	seq, err := appendUser(rm.UserAdmins[k], u)
	if err != nil {
		return err
	}
	rm.UserAdmins[k] = seq
	return nil
}

// AddAuth appends a new authorisation to the room. It is an error to
// add one whose id already exists.
func (rm *Room) AddAuth(a *Authorisation) error {
	k := keyOf(a.ID)
	if _, exists := rm.Authorisations[k]; exists {
		return ErrAuthorisationExists
	}
	rm.Authorisations[k] = a
	return nil
}

// AddUser appends u to the authorisation's user sequence (I1).
func (a *Authorisation) AddUser(u *User) error {
	k := keyOf(u.VerifyingKey)
	seq, err := appendUser(a.Users[k], u)
	if err != nil {
		return err
	}
	a.Users[k] = seq
	return nil
}

// AddRight appends r to the authorisation's right sequence for its
// entity, rejecting any valid_from lesser than the last recorded one
// (I2 — non-decreasing, ties permitted since rights, unlike users, are
// not required to be strictly monotonic by the spec).
func (a *Authorisation) AddRight(r *EntityRight) error {
	seq := a.Rights[r.Entity]
	if len(seq) > 0 && r.ValidFrom < seq[len(seq)-1].ValidFrom {
		return ErrInvalidRightDate
	}
	a.Rights[r.Entity] = append(seq, r)
	return nil
}
