package ordering

import (
	"crypto/rand"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrCircleNotFound = errors.New("order circle not found")
	ErrNotMember      = errors.New("session is not a member of the circle")
)

// codeAlphabet avoids characters that are ambiguous when read aloud.
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLen = 6

// CircleMember is one participant, keyed by their live session.
type CircleMember struct {
	SessionID string    `json:"-"`
	Name      string    `json:"name"`
	JoinedAt  time.Time `json:"joined_at"`
}

// CircleLine is a contributed cart line. It is a snapshot: later changes to
// the contributor's own cart do not flow back into the circle.
type CircleLine struct {
	MemberName string   `json:"member_name"`
	Item       CartItem `json:"item"`
}

// CircleView is an immutable copy handed to display events and tool results.
type CircleView struct {
	Code     string         `json:"code"`
	Name     string         `json:"name"`
	Members  []CircleMember `json:"members"`
	Lines    []CircleLine   `json:"lines"`
	Subtotal int64          `json:"subtotal"`
}

type circle struct {
	code      string
	name      string
	hostID    string
	createdAt time.Time
	members   []CircleMember
	lines     []CircleLine
}

// Circles is the process-wide registry of collaborative orders. Every session
// touching a circle goes through here; member carts stay session-exclusive.
type Circles struct {
	mu     sync.Mutex
	byCode map[string]*circle
	now    func() time.Time
}

func NewCircles() *Circles {
	return &Circles{byCode: make(map[string]*circle), now: time.Now}
}

// Create opens a circle hosted by the given session and returns its view. The
// host is the first member.
func (r *Circles) Create(name, hostSessionID, hostName string) (CircleView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.newCode()
	if err != nil {
		return CircleView{}, err
	}
	now := r.now()
	c := &circle{
		code:      code,
		name:      name,
		hostID:    hostSessionID,
		createdAt: now,
		members:   []CircleMember{{SessionID: hostSessionID, Name: hostName, JoinedAt: now}},
	}
	r.byCode[code] = c
	return c.view(), nil
}

// Join adds a session to the circle. Joining again under the same session is
// idempotent but refreshes the display name.
func (r *Circles) Join(code, sessionID, memberName string) (CircleView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byCode[code]
	if !ok {
		return CircleView{}, ErrCircleNotFound
	}
	for i := range c.members {
		if c.members[i].SessionID == sessionID {
			c.members[i].Name = memberName
			return c.view(), nil
		}
	}
	c.members = append(c.members, CircleMember{SessionID: sessionID, Name: memberName, JoinedAt: r.now()})
	return c.view(), nil
}

// Share replaces the member's contributed lines with a snapshot of the given
// items. The caller keeps ownership of its cart; items are copied.
func (r *Circles) Share(code, sessionID string, items []CartItem) (CircleView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byCode[code]
	if !ok {
		return CircleView{}, ErrCircleNotFound
	}
	var name string
	found := false
	for _, m := range c.members {
		if m.SessionID == sessionID {
			name, found = m.Name, true
			break
		}
	}
	if !found {
		return CircleView{}, ErrNotMember
	}

	kept := c.lines[:0]
	for _, ln := range c.lines {
		if ln.MemberName != name {
			kept = append(kept, ln)
		}
	}
	c.lines = kept
	for _, it := range items {
		it.Customizations = append([]string(nil), it.Customizations...)
		c.lines = append(c.lines, CircleLine{MemberName: name, Item: it})
	}
	return c.view(), nil
}

// Status returns the circle's current view.
func (r *Circles) Status(code string) (CircleView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.byCode[code]
	if !ok {
		return CircleView{}, ErrCircleNotFound
	}
	return c.view(), nil
}

func (c *circle) view() CircleView {
	v := CircleView{
		Code:    c.code,
		Name:    c.name,
		Members: append([]CircleMember(nil), c.members...),
		Lines:   make([]CircleLine, 0, len(c.lines)),
	}
	for _, ln := range c.lines {
		ln.Item.Customizations = append([]string(nil), ln.Item.Customizations...)
		v.Lines = append(v.Lines, ln)
		v.Subtotal += ln.Item.LineTotal
	}
	sort.SliceStable(v.Members, func(i, j int) bool { return v.Members[i].JoinedAt.Before(v.Members[j].JoinedAt) })
	return v
}

func (r *Circles) newCode() (string, error) {
	for attempt := 0; attempt < 10; attempt++ {
		buf := make([]byte, codeLen)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for i, b := range buf {
			buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
		}
		code := string(buf)
		if _, taken := r.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", errors.New("could not allocate a unique circle code")
}
