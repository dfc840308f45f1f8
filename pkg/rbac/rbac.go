package rbac

// ValidateOwner checks that a user id carried in a payload matches the
// authenticated caller. An empty payload id is accepted: the gateway stamps it.
func ValidateOwner(tokenUserID, payloadUserID string) error {
	if payloadUserID == "" || payloadUserID == tokenUserID {
		return nil
	}
	return &OwnerMismatchError{
		TokenUserID:   tokenUserID,
		PayloadUserID: payloadUserID,
	}
}

// OwnerMismatchError means a request tried to act on another user's data.
type OwnerMismatchError struct {
	TokenUserID   string
	PayloadUserID string
}

func (e *OwnerMismatchError) Error() string {
	return "userId in payload does not match session"
}

// ValidatePath checks that a collection path belongs to userID.
func ValidatePath(userID, path string) error {
	prefix := "users/" + userID + "/"
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return nil
	}
	return &OwnerMismatchError{TokenUserID: userID, PayloadUserID: path}
}
