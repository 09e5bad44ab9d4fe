package adapter

import (
	"context"
	"testing"

	"MeetingSync/internal/config"
	"MeetingSync/internal/interfaces"
	"MeetingSync/internal/model"

	"github.com/sirupsen/logrus"
)

type stubAdapter struct {
	source model.Source
}

func (s *stubAdapter) GetSource() model.Source { return s.source }

func (s *stubAdapter) FetchMeetings(context.Context) (*model.FetchResult, error) {
	return &model.FetchResult{Source: s.source}, nil
}

func stubFactory(source model.Source) Factory {
	return func(*config.SourceConfig, *logrus.Logger) interfaces.SourceAdapter {
		return &stubAdapter{source: source}
	}
}

func TestRegistryBuildsOnlyEnabledSources(t *testing.T) {
	Register(model.SourceDirectoryA, stubFactory(model.SourceDirectoryA))
	Register(model.SourceDirectoryB, stubFactory(model.SourceDirectoryB))

	cfg := &config.Config{Sources: map[string]config.SourceConfig{
		string(model.SourceDirectoryA): {Enabled: true, BaseURL: "https://a.example"},
		string(model.SourceDirectoryB): {Enabled: false},
	}}
	reg := NewSourceRegistry(cfg, logrus.New())

	adapters := reg.Adapters()
	if len(adapters) != 1 || adapters[0].GetSource() != model.SourceDirectoryA {
		t.Fatalf("expected only directoryA adapter, got %v", adapters)
	}
}

func TestRegistrySkipsMismatchedFactory(t *testing.T) {
	Register(model.SourceDirectoryA, stubFactory(model.SourceDirectoryB))
	defer Register(model.SourceDirectoryA, stubFactory(model.SourceDirectoryA))

	cfg := &config.Config{Sources: map[string]config.SourceConfig{
		string(model.SourceDirectoryA): {Enabled: true},
	}}
	reg := NewSourceRegistry(cfg, logrus.New())
	if len(reg.Adapters()) != 0 {
		t.Fatalf("expected mismatched adapter to be dropped")
	}
}

func TestRegisterRejectsNilFactory(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for nil factory")
		}
	}()
	Register(model.SourceDirectoryA, nil)
}

func TestFilterValidSkipsBadRecords(t *testing.T) {
	records := []model.CanonicalMeeting{
		{ExternalID: "1", Name: "Morning Group", Weekday: 1, StartTime: "07:00"},
		{ExternalID: "2", Name: "Bad Time", Weekday: 1, StartTime: "7pm"},
		{ExternalID: "3", Name: "Bad Day", Weekday: 7, StartTime: "08:00"},
		{ExternalID: "", Name: "No ID", Weekday: 2, StartTime: "09:00"},
		{ExternalID: "5", Name: "Bad Email", Weekday: 3, StartTime: "10:00", ContactEmail: "nope"},
	}
	valid, skipped := FilterValid(NewRecordValidator(), model.SourceDirectoryA, records, logrus.New())
	if skipped != 4 {
		t.Fatalf("expected 4 skipped, got %d", skipped)
	}
	if len(valid) != 1 || valid[0].ExternalID != "1" {
		t.Fatalf("unexpected valid records %+v", valid)
	}
}
