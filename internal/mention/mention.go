// Package mention turns "@name" references in message text into participant
// ids.
package mention

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/eldtechnologies/agentrooms/internal/models"
)

var tokenPattern = regexp.MustCompile(`@\S+`)

const trailingPunct = ".,!?;:)"

// Token is one "@name" occurrence. Offset is the byte index of the name,
// just after the '@'.
type Token struct {
	Name   string
	Offset int
}

// Parse extracts mention tokens in text order. Trailing punctuation is not
// part of a name.
func Parse(text string) []Token {
	var tokens []Token
	for _, loc := range tokenPattern.FindAllStringIndex(text, -1) {
		name := strings.TrimRight(text[loc[0]+1:loc[1]], trailingPunct)
		if name == "" {
			continue
		}
		tokens = append(tokens, Token{Name: name, Offset: loc[0] + 1})
	}
	return tokens
}

// RoomSource is the read side of the store the resolver needs.
type RoomSource interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
}

// Resolver maps mention tokens to room participants.
type Resolver struct {
	rooms     RoomSource
	crossRoom bool
}

// NewResolver creates a resolver. With crossRoom set, agent names that match
// no participant of the room are looked up among the agents of every room.
func NewResolver(rooms RoomSource, crossRoom bool) *Resolver {
	return &Resolver{rooms: rooms, crossRoom: crossRoom}
}

type candidate struct {
	name string
	user models.User
}

// Resolve returns the participants mentioned in text, in order. Tokens that
// match nobody are dropped. A participant mentioned several times in a row is
// kept once, so "@Bot @Bot see @Carol @Bot" yields Bot, Carol, Bot.
func (r *Resolver) Resolve(ctx context.Context, roomID, text string) ([]models.User, error) {
	tokens := Parse(text)
	if len(tokens) == 0 {
		return []models.User{}, nil
	}

	room, err := r.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("load room: %w", err)
	}
	if room == nil {
		return []models.User{}, nil
	}

	local := roomCandidates(room)
	var global []candidate

	resolved := make([]models.User, 0, len(tokens))
	for _, tok := range tokens {
		user, ok := match(text, tok, local)
		if !ok && r.crossRoom {
			if global == nil {
				global, err = r.agentCandidates(ctx)
				if err != nil {
					return nil, err
				}
			}
			user, ok = match(text, tok, global)
		}
		if !ok {
			continue
		}
		if n := len(resolved); n > 0 && resolved[n-1].ID == user.ID {
			continue
		}
		resolved = append(resolved, user)
	}
	return resolved, nil
}

// IDs returns the ids of users.
func IDs(users []models.User) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

// roomCandidates lists every name a room participant can be mentioned by,
// longest first so multi-word names win over their prefixes.
func roomCandidates(room *models.Room) []candidate {
	var out []candidate
	for _, m := range room.Members {
		out = append(out, candidate{name: m.Name, user: m})
		if m.IsAgent() {
			out = append(out, candidate{name: strings.TrimPrefix(m.Name, models.AgentMarker), user: m})
		}
	}
	for _, a := range room.Agents {
		if !room.HasMember(a.ID) {
			out = append(out, candidate{name: a.Name, user: a.User()}, candidate{name: a.ShortName(), user: a.User()})
		}
	}
	sortCandidates(out)
	return out
}

func (r *Resolver) agentCandidates(ctx context.Context) ([]candidate, error) {
	rooms, err := r.rooms.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	out := []candidate{}
	for _, room := range rooms {
		for _, a := range room.Agents {
			out = append(out, candidate{name: a.Name, user: a.User()}, candidate{name: a.ShortName(), user: a.User()})
		}
	}
	sortCandidates(out)
	return out, nil
}

func sortCandidates(c []candidate) {
	sort.SliceStable(c, func(i, j int) bool {
		return len(c[i].name) > len(c[j].name)
	})
}

// match finds the longest candidate name written at the token's offset and
// followed by a word boundary.
func match(text string, tok Token, candidates []candidate) (models.User, bool) {
	rest := text[tok.Offset:]
	for _, c := range candidates {
		if c.name == "" || !strings.HasPrefix(rest, c.name) {
			continue
		}
		if atBoundary(rest[len(c.name):]) {
			return c.user, true
		}
	}
	return models.User{}, false
}

func atBoundary(s string) bool {
	if s == "" {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsSpace(r) || strings.ContainsRune(trailingPunct, r)
}
