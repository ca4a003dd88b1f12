package xbeeboot

import "testing"

func TestStatsSummaryEmptyGroup(t *testing.T) {
	s := newStats()
	summaries := s.Summaries()
	if len(summaries) != int(numStatGroups) {
		t.Fatalf("expected %d groups, got %d", numStatGroups, len(summaries))
	}
	for _, sum := range summaries {
		if sum.Count != 0 {
			t.Fatalf("expected empty group, got count %d", sum.Count)
		}
	}
}

func TestStatsBeginCompleteRecordsSample(t *testing.T) {
	s := newStats()
	s.begin(StatGroupTransmit, 5)
	s.complete(StatGroupTransmit, 5)

	summaries := s.Summaries()
	got := summaries[StatGroupTransmit]
	if got.Count != 1 {
		t.Fatalf("expected one sample, got %d", got.Count)
	}
}

func TestStatsCompleteWithoutBeginIsNoop(t *testing.T) {
	s := newStats()
	s.complete(StatGroupReceive, 9)
	if got := s.Summaries()[StatGroupReceive]; got.Count != 0 {
		t.Fatalf("expected no sample recorded, got %d", got.Count)
	}
}

func TestAllFourGroupsAreIndependentlyInitialized(t *testing.T) {
	s := newStats()
	s.begin(StatGroupLocalAT, 1)
	s.complete(StatGroupLocalAT, 1)
	s.begin(StatGroupRemoteAT, 1)
	s.complete(StatGroupRemoteAT, 1)
	s.begin(StatGroupReceive, 1)
	s.complete(StatGroupReceive, 1)

	summaries := s.Summaries()
	if summaries[StatGroupLocalAT].Count != 1 || summaries[StatGroupRemoteAT].Count != 1 || summaries[StatGroupReceive].Count != 1 {
		t.Fatalf("expected all touched groups independently tracked: %+v", summaries)
	}
	if summaries[StatGroupTransmit].Count != 0 {
		t.Fatalf("untouched group should remain empty: %+v", summaries[StatGroupTransmit])
	}
}
