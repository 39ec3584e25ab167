package room

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

type userJSON struct {
	VerifyingKey string `json:"verifying_key"`
	Date         int64  `json:"date"`
	Enabled      bool   `json:"enabled"`
}

type rightJSON struct {
	ValidFrom  int64  `json:"valid_from"`
	Entity     string `json:"entity"`
	MutateSelf bool   `json:"mutate_self"`
	MutateAll  bool   `json:"mutate_all"`
}

type authorisationJSON struct {
	ID     string      `json:"id"`
	MDate  int64       `json:"mdate"`
	Rights []rightJSON `json:"rights"`
	Users  []userJSON  `json:"users"`
}

type roomJSON struct {
	ID             string              `json:"id"`
	MDate          int64               `json:"mdate"`
	RoomID         *string             `json:"room_id"`
	Admin          []userJSON          `json:"admin"`
	UserAdmin      []userJSON          `json:"user_admin"`
	Authorisations []authorisationJSON `json:"authorisations"`
}

type snapshot struct {
	Room []roomJSON `json:"Room"`
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("room: invalid base64 identifier %q: %w", s, err)
	}
	return b, nil
}

// usersDesc flattens every per-key sequence into one list sorted by
// date descending (newest first), matching the canonical dump order.
func usersDesc(m map[string][]*User) []userJSON {
	var out []userJSON
	for _, seq := range m {
		for _, u := range seq {
			out = append(out, userJSON{VerifyingKey: b64(u.VerifyingKey), Date: u.Date, Enabled: u.Enabled})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

func rightsDesc(m map[string][]*EntityRight) []rightJSON {
	var out []rightJSON
	for _, seq := range m {
		for _, r := range seq {
			out = append(out, rightJSON{ValidFrom: r.ValidFrom, Entity: r.Entity, MutateSelf: r.MutateSelf, MutateAll: r.MutateAll})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidFrom > out[j].ValidFrom })
	return out
}

func toRoomJSON(rm *Room) roomJSON {
	var parent *string
	if len(rm.Parent) > 0 {
		p := b64(rm.Parent)
		parent = &p
	}
	out := roomJSON{
		ID:        b64(rm.ID),
		MDate:     rm.MDate,
		RoomID:    parent,
		Admin:     usersDesc(rm.Admins),
		UserAdmin: usersDesc(rm.UserAdmins),
	}
	ids := make([]string, 0, len(rm.Authorisations))
	for id := range rm.Authorisations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		a := rm.Authorisations[id]
		out.Authorisations = append(out.Authorisations, authorisationJSON{
			ID:     b64(a.ID),
			MDate:  a.MDate,
			Rights: rightsDesc(a.Rights),
			Users:  usersDesc(a.Users),
		})
	}
	return out
}

// DumpJSON serialises rooms into the canonical room-load snapshot
// format (§6): a single {"Room": [...]} object, per-key sequences
// ordered newest-first.
func DumpJSON(rooms map[string]*Room) ([]byte, error) {
	snap := snapshot{}
	ids := make([]string, 0, len(rooms))
	for id := range rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		snap.Room = append(snap.Room, toRoomJSON(rooms[id]))
	}
	return json.Marshal(snap)
}

// loadUsersAscending reverses the newest-first dump order back to
// oldest-first so each AddXxxUser call observes non-decreasing dates.
func loadUsersAscending(js []userJSON) ([]*User, error) {
	out := make([]*User, len(js))
	for i, u := range js {
		k, err := unb64(u.VerifyingKey)
		if err != nil {
			return nil, err
		}
		out[len(js)-1-i] = &User{VerifyingKey: k, Date: u.Date, Enabled: u.Enabled}
	}
	return out, nil
}

func loadRightsAscending(js []rightJSON) []*EntityRight {
	out := make([]*EntityRight, len(js))
	for i, r := range js {
		out[len(js)-1-i] = &EntityRight{ValidFrom: r.ValidFrom, Entity: r.Entity, MutateSelf: r.MutateSelf, MutateAll: r.MutateAll}
	}
	return out
}

// LoadJSON rebuilds a full room map from the canonical snapshot,
// re-running every append so I1/I2 are re-validated on load.
func LoadJSON(data []byte) (map[string]*Room, error) {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("room: parse snapshot: %w", err)
	}

	rooms := map[string]*Room{}
	for _, rj := range snap.Room {
		id, err := unb64(rj.ID)
		if err != nil {
			return nil, err
		}
		var parent []byte
		if rj.RoomID != nil {
			parent, err = unb64(*rj.RoomID)
			if err != nil {
				return nil, err
			}
		}
		rm := NewRoom(id, parent, rj.MDate)

		admins, err := loadUsersAscending(rj.Admin)
		if err != nil {
			return nil, err
		}
		for _, u := range admins {
			if err := rm.AddAdminUser(u); err != nil {
				return nil, fmt.Errorf("room: load admin: %w", err)
			}
		}

		userAdmins, err := loadUsersAscending(rj.UserAdmin)
		if err != nil {
			return nil, err
		}
		for _, u := range userAdmins {
			if err := rm.AddUserAdminUser(u); err != nil {
				return nil, fmt.Errorf("room: load user_admin: %w", err)
			}
		}

		for _, aj := range rj.Authorisations {
			aid, err := unb64(aj.ID)
			if err != nil {
				return nil, err
			}
			auth := NewAuthorisation(aid, aj.MDate)
			for _, r := range loadRightsAscending(aj.Rights) {
				if err := auth.AddRight(r); err != nil {
					return nil, fmt.Errorf("room: load right: %w", err)
				}
			}
			users, err := loadUsersAscending(aj.Users)
			if err != nil {
				return nil, err
			}
			for _, u := range users {
				if err := auth.AddUser(u); err != nil {
					return nil, fmt.Errorf("room: load authorisation user: %w", err)
				}
			}
			if err := rm.AddAuth(auth); err != nil {
				return nil, fmt.Errorf("room: load authorisation: %w", err)
			}
		}

		rooms[b64(rm.ID)] = rm
	}
	return rooms, nil
}
