package session

import "encoding/json"

// The persisted blob mirrors the in-memory session exactly: user, token,
// authenticated flag.

func marshalSession(s Session) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func unmarshalSession(data string, out *Session) error {
	return json.Unmarshal([]byte(data), out)
}
