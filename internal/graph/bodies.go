package graph

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// UserBody is the canonical JSON body of a UserAuth row: the
// principal being granted/revoked (distinct from the row's own
// VerifyingKey, which is whoever signed the grant).
type UserBody struct {
	VerifyingKey string `json:"verifying_key"`
	Enabled      bool   `json:"enabled"`
}

// EncodeUserBody marshals a UserBody.
func EncodeUserBody(verifyingKey []byte, enabled bool) ([]byte, error) {
	b, err := json.Marshal(UserBody{VerifyingKey: base64.StdEncoding.EncodeToString(verifyingKey), Enabled: enabled})
	if err != nil {
		return nil, fmt.Errorf("graph: encode user body: %w", err)
	}
	return b, nil
}

// DecodeUserBody parses a UserAuth row's JSON body.
func DecodeUserBody(body []byte) (verifyingKey []byte, enabled bool, err error) {
	var ub UserBody
	if err := json.Unmarshal(body, &ub); err != nil {
		return nil, false, fmt.Errorf("graph: parse user body: %w", err)
	}
	key, err := base64.StdEncoding.DecodeString(ub.VerifyingKey)
	if err != nil {
		return nil, false, fmt.Errorf("graph: invalid verifying_key: %w", err)
	}
	return key, ub.Enabled, nil
}

// RightBody is the canonical JSON body of an EntityRight row.
type RightBody struct {
	Entity     string `json:"entity"`
	MutateSelf bool   `json:"mutate_self"`
	MutateAll  bool   `json:"mutate_all"`
}

// EncodeRightBody marshals a RightBody.
func EncodeRightBody(entity string, mutateSelf, mutateAll bool) ([]byte, error) {
	b, err := json.Marshal(RightBody{Entity: entity, MutateSelf: mutateSelf, MutateAll: mutateAll})
	if err != nil {
		return nil, fmt.Errorf("graph: encode right body: %w", err)
	}
	return b, nil
}

// DecodeRightBody parses an EntityRight row's JSON body.
func DecodeRightBody(body []byte) (entity string, mutateSelf, mutateAll bool, err error) {
	var rb RightBody
	if err := json.Unmarshal(body, &rb); err != nil {
		return "", false, false, fmt.Errorf("graph: parse right body: %w", err)
	}
	return rb.Entity, rb.MutateSelf, rb.MutateAll, nil
}
