// ABOUTME: User records as they arrive from the API and their normalized display form
// ABOUTME: Applies the name, avatar and status defaults every UI-facing profile carries

package chat

import (
	"net/url"
	"strings"
)

const (
	// DefaultStatus is assumed for users whose record carries no status.
	DefaultStatus = "online"

	// PlaceholderName is used when a record has neither a name nor first/last names.
	PlaceholderName = "Utilisateur"

	// UnknownUserName is shown for senders that could not be resolved.
	UnknownUserName = "Utilisateur inconnu"

	avatarBaseURL    = "https://ui-avatars.com/api/"
	avatarBackground = "4a6bff"
	avatarColor      = "fff"
)

// RawUser is a user record in wire form, either returned by GET /users/{id}
// or embedded in a message, conversation or group payload.
type RawUser struct {
	ID           string `json:"_id"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Email        string `json:"email,omitempty"`
	Image        string `json:"image,omitempty"`
	Name         string `json:"name,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
	Status       string `json:"status,omitempty"`
}

// UserDisplay is the normalized profile handed to the UI. Every field is
// always populated.
type UserDisplay struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profileImageUrl"`
	Status          string `json:"status"`
}

// AvatarURL returns the generated avatar image URL keyed by name.
func AvatarURL(name string) string {
	escaped := strings.ReplaceAll(url.QueryEscape(name), "+", "%20")
	return avatarBaseURL + "?name=" + escaped +
		"&background=" + avatarBackground + "&color=" + avatarColor
}

// FullName joins first and last name, trimmed.
func (u RawUser) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Display normalizes the record: an existing name wins, then first/last name,
// then PlaceholderName. The image falls back from profileImage to image to a
// generated avatar, and the status defaults to DefaultStatus.
func (u RawUser) Display() UserDisplay {
	name := u.Name
	if strings.TrimSpace(name) == "" {
		name = u.FullName()
	}
	if name == "" {
		name = PlaceholderName
	}

	image := u.ProfileImage
	if image == "" {
		image = u.Image
	}
	if image == "" {
		image = AvatarURL(name)
	}

	status := u.Status
	if status == "" {
		status = DefaultStatus
	}

	return UserDisplay{
		ID:              u.ID,
		Name:            name,
		ProfileImageURL: image,
		Status:          status,
	}
}

// EmbeddedDisplay synthesizes a display straight from an embedded record that
// carries a first name. The name is first + " " + last, untrimmed, and the
// generated avatar is keyed by the first name only.
func (u RawUser) EmbeddedDisplay() UserDisplay {
	image := u.ProfileImage
	if image == "" {
		image = u.Image
	}
	if image == "" {
		image = AvatarURL(u.FirstName)
	}

	status := u.Status
	if status == "" {
		status = DefaultStatus
	}

	return UserDisplay{
		ID:              u.ID,
		Name:            u.FirstName + " " + u.LastName,
		ProfileImageURL: image,
		Status:          status,
	}
}

// UnknownUser is the placeholder attached to messages whose sender could not
// be resolved.
func UnknownUser(id string) UserDisplay {
	return UserDisplay{
		ID:              id,
		Name:            UnknownUserName,
		ProfileImageURL: AvatarURL(PlaceholderName),
		Status:          "offline",
	}
}

// IsUnknown reports whether d is the unresolved-sender placeholder.
func (d UserDisplay) IsUnknown() bool {
	return d.Name == UnknownUserName
}

// Complete reports whether every display field is populated.
func (d UserDisplay) Complete() bool {
	return d.ID != "" && d.Name != "" && d.ProfileImageURL != "" && d.Status != ""
}
