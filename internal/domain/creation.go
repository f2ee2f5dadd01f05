package domain

import "time"

// CreationStep is the wizard's position in the room-creation form.
type CreationStep int

const (
	StepRoomName CreationStep = iota
	StepTimeout
	StepWorldSetting
	StepWorldTooLong
	StepSummarizing
	StepConfirm
)

func (s CreationStep) String() string {
	switch s {
	case StepRoomName:
		return "room_name"
	case StepTimeout:
		return "timeout"
	case StepWorldSetting:
		return "world_setting"
	case StepWorldTooLong:
		return "world_too_long"
	case StepSummarizing:
		return "summarizing"
	case StepConfirm:
		return "confirm"
	}
	return "unknown"
}

// PendingCreation is one player's in-flight room-creation wizard. There is no
// background timer for it; staleness is checked lazily on the next input.
type PendingCreation struct {
	PlayerID   PlayerID
	PlayerName string
	Addr       Address

	Step          CreationStep
	RoomName      string
	RoundTimeout  int
	World         string
	OriginalWorld string

	StartedAt time.Time
}

func NewPendingCreation(id PlayerID, name string, addr Address) *PendingCreation {
	return &PendingCreation{
		PlayerID:   id,
		PlayerName: name,
		Addr:       addr,
		Step:       StepRoomName,
		StartedAt:  time.Now(),
	}
}

// Reset clears every collected field and restarts the form, keeping the
// player identity and refreshing the staleness clock.
func (pc *PendingCreation) Reset() {
	pc.Step = StepRoomName
	pc.RoomName = ""
	pc.RoundTimeout = 0
	pc.World = ""
	pc.OriginalWorld = ""
	pc.StartedAt = time.Now()
}
