package room

// lastAtOrBefore returns the record with the greatest Date <= t from a
// sequence sorted ascending by Date, or nil if none qualifies.
func lastAtOrBefore(seq []*User, t int64) *User {
	var found *User
	for _, u := range seq {
		if u.Date > t {
			break
		}
		found = u
	}
	return found
}

func rightAtOrBefore(seq []*EntityRight, t int64) *EntityRight {
	var found *EntityRight
	for _, r := range seq {
		if r.ValidFrom > t {
			break
		}
		found = r
	}
	return found
}

// IsAdmin reports whether k is an enabled admin of room at time t.
func (rm *Room) IsAdmin(k []byte, t int64) bool {
	u := lastAtOrBefore(rm.Admins[keyOf(k)], t)
	return u != nil && u.Enabled
}

// IsUserAdmin reports whether k is an enabled user-admin of room at
// time t.
func (rm *Room) IsUserAdmin(k []byte, t int64) bool {
	u := lastAtOrBefore(rm.UserAdmins[keyOf(k)], t)
	return u != nil && u.Enabled
}

// IsUserInAuth reports whether k is an enabled user of auth at time t.
func (a *Authorisation) IsUserInAuth(k []byte, t int64) bool {
	u := lastAtOrBefore(a.Users[keyOf(k)], t)
	return u != nil && u.Enabled
}

// RightAt returns the EntityRight in force for entity at time t, or
// nil if none has been granted yet.
func (a *Authorisation) RightAt(entity string, t int64) *EntityRight {
	return rightAtOrBefore(a.Rights[entity], t)
}

// Can reports whether k holds kind over entity in room at time t,
// through any authorisation whose membership and right both cover t.
func (rm *Room) Can(k []byte, entity string, t int64, kind RightKind) bool {
	for _, a := range rm.Authorisations {
		if !a.IsUserInAuth(k, t) {
			continue
		}
		if a.RightAt(entity, t).Grants(kind) {
			return true
		}
	}
	return false
}

// IsUserValidAt reports whether k is a valid principal of room at time
// t: an admin, a user-admin, or a member of any authorisation.
func (rm *Room) IsUserValidAt(k []byte, t int64) bool {
	if rm.IsAdmin(k, t) || rm.IsUserAdmin(k, t) {
		return true
	}
	for _, a := range rm.Authorisations {
		if a.IsUserInAuth(k, t) {
			return true
		}
	}
	return false
}
