package model

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTranscriptPairs(t *testing.T) {
	Convey("Given a transcript", t, func() {
		tr := Transcript{
			{Role: RoleAssistant, Text: "Tell me about yourself."},
			{Role: RoleUser, Text: "I build services."},
			{Role: RoleUser, Text: "Mostly in Go."},
			{Role: RoleAssistant, Text: "Why Go?"},
			{Role: RoleAssistant, Text: "Any questions?"},
			{Role: RoleUser, Text: "No."},
		}

		Convey("When pairing questions with answers", func() {
			pairs := tr.Pairs()

			Convey("Then consecutive user turns form one answer", func() {
				So(pairs, ShouldHaveLength, 3)
				So(pairs[0].Answer, ShouldEqual, "I build services. Mostly in Go.")
			})

			Convey("And a question without reply has an empty answer", func() {
				So(pairs[1].Question, ShouldEqual, "Why Go?")
				So(pairs[1].Answer, ShouldBeEmpty)
				So(pairs[2].Answer, ShouldEqual, "No.")
			})
		})

		Convey("When collecting candidate text", func() {
			So(tr.CandidateText(), ShouldEqual, "I build services. Mostly in Go. No.")
		})

		Convey("When the candidate speaks before the first question", func() {
			pairs := Transcript{{Role: RoleUser, Text: "hello"}}.Pairs()
			So(pairs, ShouldHaveLength, 1)
			So(pairs[0].Question, ShouldBeEmpty)
			So(pairs[0].Answer, ShouldEqual, "hello")
		})
	})
}

func TestParsers(t *testing.T) {
	Convey("Given status and scale labels", t, func() {
		s, ok := ParseStatus(" in_progress ")
		So(ok, ShouldBeTrue)
		So(s, ShouldEqual, StatusInProgress)

		_, ok = ParseStatus("paused")
		So(ok, ShouldBeFalse)

		So(ParseScaleType("Percentage"), ShouldEqual, ScalePercentage)
		So(ParseScaleType("stars"), ShouldEqual, ScaleStars)
		So(ParseScaleType(""), ShouldEqual, ScaleOneToFive)

		So(ProctorFaceMismatch.Valid(), ShouldBeTrue)
		So(ProctorStatus("blurry").Valid(), ShouldBeFalse)
	})
}

func TestInterviewConfigExhausted(t *testing.T) {
	Convey("Given an interview config", t, func() {
		So(InterviewConfig{AllowedAttempts: 2, UsedAttempts: 2}.Exhausted(), ShouldBeTrue)
		So(InterviewConfig{AllowedAttempts: 2, UsedAttempts: 1}.Exhausted(), ShouldBeFalse)
		So(InterviewConfig{AllowedAttempts: 0, UsedAttempts: 9}.Exhausted(), ShouldBeFalse)
	})
}
