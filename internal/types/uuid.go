package types

import "github.com/google/uuid"

func parseUUID(s string) (UUIDValue, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return UUIDValue{}, err
	}
	return UUIDValue(u), nil
}

func uuidString(v UUIDValue) string {
	return uuid.UUID(v).String()
}
