// Package turntaking arbitrates between interviewer speech playback and the
// candidate's recognizer so the two never overlap.
package turntaking

import "fmt"

type State string

type Event string

const (
	StateIdle        State = "IDLE"
	StateListening   State = "LISTENING"
	StateBotSpeaking State = "BOT_SPEAKING"
)

const (
	EventListen   Event = "listen"
	EventMute     Event = "mute"
	EventBotStart Event = "bot_start"
	EventBotEnd   Event = "bot_end"
	EventEnd      Event = "end"
)

// Transition is the pure state table. Resuming after playback is not a
// transition of its own: BotEnd lands in IDLE and the coordinator decides
// whether to apply Listen.
func Transition(current State, event Event) (State, error) {
	if event == EventEnd {
		return StateIdle, nil
	}

	switch current {
	case StateIdle:
		switch event {
		case EventListen:
			return StateListening, nil
		case EventMute:
			return StateIdle, nil
		case EventBotStart:
			return StateBotSpeaking, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateListening:
		switch event {
		case EventMute:
			return StateIdle, nil
		case EventBotStart:
			return StateBotSpeaking, nil
		default:
			return current, invalidTransition(current, event)
		}
	case StateBotSpeaking:
		switch event {
		case EventBotStart, EventMute:
			return StateBotSpeaking, nil
		case EventBotEnd:
			return StateIdle, nil
		default:
			return current, invalidTransition(current, event)
		}
	default:
		return current, fmt.Errorf("unknown state %q", current)
	}
}

func invalidTransition(state State, event Event) error {
	return fmt.Errorf("%w: %s --(%s)--> ?", ErrInvalidTransition, state, event)
}
