package graph

import (
	"strconv"
	"strings"

	"github.com/gravitational/trace"
)

// minRID marks the start of the POSIX-usable id range. RIDs below it belong
// to built-in directory principals and must never surface as uids or gids.
const minRID = 1000

// User is a directory user normalized for NSS consumption. It lives for one
// lookup: parsed from a single Graph object, serialized into the caller's
// buffer, discarded.
type User struct {
	// Name is the userPrincipalName, used as the login name.
	Name string
	// DisplayName becomes the gecos field.
	DisplayName string
	// UID is the RID of the user's security identifier.
	UID uint32
}

// Group is a directory group normalized for NSS consumption.
type Group struct {
	// Name is the group's displayName.
	Name string
	// ObjectID is the directory-native id, used only to fetch membership.
	ObjectID string
	// GID is the RID of the group's security identifier.
	GID uint32
}

type userPayload struct {
	UserPrincipalName  *string `json:"userPrincipalName"`
	DisplayName        *string `json:"displayName"`
	SecurityIdentifier *string `json:"onPremisesSecurityIdentifier"`
}

func (p *userPayload) record() (*User, error) {
	if p.UserPrincipalName == nil || p.DisplayName == nil || p.SecurityIdentifier == nil {
		return nil, trace.Wrap(ErrBadResponse, "user object lacks a required field")
	}
	uid, err := ridFromSID(*p.SecurityIdentifier)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &User{
		Name:        *p.UserPrincipalName,
		DisplayName: *p.DisplayName,
		UID:         uid,
	}, nil
}

type groupPayload struct {
	DisplayName        *string `json:"displayName"`
	ObjectID           *string `json:"objectId"`
	SecurityIdentifier *string `json:"onPremisesSecurityIdentifier"`
}

func (p *groupPayload) record() (*Group, error) {
	if p.DisplayName == nil || p.ObjectID == nil || p.SecurityIdentifier == nil {
		return nil, trace.Wrap(ErrBadResponse, "group object lacks a required field")
	}
	gid, err := ridFromSID(*p.SecurityIdentifier)
	if err != nil {
		return nil, trace.Wrap(err)
	}
	return &Group{
		Name:     *p.DisplayName,
		ObjectID: *p.ObjectID,
		GID:      gid,
	}, nil
}

// ridFromSID derives a POSIX numeric id from a security identifier string
// ("S-1-5-21-...-<rid>"): the final hyphen-delimited component, as u32.
func ridFromSID(sid string) (uint32, error) {
	i := strings.LastIndexByte(sid, '-')
	if i < 0 || i == len(sid)-1 {
		return 0, &UnusableIdentifierError{SID: sid}
	}
	rid, err := strconv.ParseUint(sid[i+1:], 10, 32)
	if err != nil || rid < minRID {
		return 0, &UnusableIdentifierError{SID: sid}
	}
	return uint32(rid), nil
}
