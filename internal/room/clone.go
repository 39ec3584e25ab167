package room

// Clone returns a deep copy of rm so a validator can speculatively
// mutate it and discard the copy on failure without touching the
// authoritative in-memory state.
func (rm *Room) Clone() *Room {
	out := NewRoom(append([]byte{}, rm.ID...), cloneBytes(rm.Parent), rm.MDate)
	for k, seq := range rm.Admins {
		out.Admins[k] = cloneUsers(seq)
	}
	for k, seq := range rm.UserAdmins {
		out.UserAdmins[k] = cloneUsers(seq)
	}
	for k, a := range rm.Authorisations {
		out.Authorisations[k] = a.Clone()
	}
	return out
}

// Clone returns a deep copy of a.
func (a *Authorisation) Clone() *Authorisation {
	out := NewAuthorisation(append([]byte{}, a.ID...), a.MDate)
	for k, seq := range a.Users {
		out.Users[k] = cloneUsers(seq)
	}
	for entity, seq := range a.Rights {
		cp := make([]*EntityRight, len(seq))
		for i, r := range seq {
			rc := *r
			cp[i] = &rc
		}
		out.Rights[entity] = cp
	}
	return out
}

func cloneUsers(seq []*User) []*User {
	cp := make([]*User, len(seq))
	for i, u := range seq {
		uc := *u
		uc.VerifyingKey = append([]byte{}, u.VerifyingKey...)
		cp[i] = &uc
	}
	return cp
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
