package video

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/KaveeshaHeshan/CareSync-Health-Platform-sub001/internal/appointment"
)

// URLRoomProvider derives a stable room link per appointment under a base URL.
// The video backend creates the room when the first participant opens it.
type URLRoomProvider struct {
	base *url.URL
}

func NewURLRoomProvider(base string) (*URLRoomProvider, error) {
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse video base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("video base url must be absolute")
	}
	return &URLRoomProvider{base: u}, nil
}

func (p *URLRoomProvider) RoomURL(_ context.Context, a *appointment.Appointment) (string, error) {
	return p.base.JoinPath(a.ProviderID.String(), a.ID.String()).String(), nil
}
