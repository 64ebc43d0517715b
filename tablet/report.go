package tablet

import "fmt"

// ReportedTablet is one tablet's entry in a TabletReport (spec.md §6).
// SchemaVersion is meaningful only when HasSchemaVersion is set: a peer
// still bootstrapping has not materialized a tablet object yet.
type ReportedTablet struct {
	ID               string
	State            PeerState
	Error            error
	Role             Role
	SchemaVersion    uint32
	HasSchemaVersion bool
}

// TabletReport is the control-plane message of spec.md §6.
type TabletReport struct {
	SequenceNumber   uint32
	IsIncremental    bool
	UpdatedTablets   []ReportedTablet
	RemovedTabletIDs []string
}

func (m *Manager) reportedTabletLocked(peer *Peer) ReportedTablet {
	version, hasVersion := peer.SchemaVersion()
	return ReportedTablet{
		ID:               peer.ID(),
		State:            peer.State(),
		Error:            peer.Error(),
		Role:             peer.Role(),
		SchemaVersion:    version,
		HasSchemaVersion: hasVersion,
	}
}

// GenerateIncrementalTabletReport implements spec.md §4.1: consumes the
// next report sequence, and for every dirty entry either includes the
// current tablet state or, if the tablet no longer exists, its identifier
// in the removed list. The dirty map itself is left untouched here;
// clearing is driven only by MarkTabletReportAcknowledged.
func (m *Manager) GenerateIncrementalTabletReport() TabletReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := m.nextReportSeq
	m.nextReportSeq++

	report := TabletReport{SequenceNumber: seq, IsIncremental: true}
	for id := range m.dirty {
		peer, ok := m.tabletMap[id]
		if !ok {
			report.RemovedTabletIDs = append(report.RemovedTabletIDs, id)
			continue
		}
		report.UpdatedTablets = append(report.UpdatedTablets, m.reportedTabletLocked(peer))
	}
	return report
}

// GenerateFullTabletReport implements spec.md §4.1: emits every tablet
// currently registered and clears the dirty map (P5).
func (m *Manager) GenerateFullTabletReport() TabletReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := m.nextReportSeq
	m.nextReportSeq++

	report := TabletReport{SequenceNumber: seq, IsIncremental: false}
	for _, peer := range m.tabletMap {
		report.UpdatedTablets = append(report.UpdatedTablets, m.reportedTabletLocked(peer))
	}
	m.dirty = make(map[string]dirtyEntry)
	return report
}

// MarkTabletReportAcknowledged implements spec.md §4.1: removes every dirty
// entry whose change_seq is at most seq. seq must be strictly less than the
// next sequence to be issued (I4); acquires the exclusive lock, per spec.md
// §9's note that the reader lock the source uses is a bug this
// implementation does not repeat.
func (m *Manager) MarkTabletReportAcknowledged(seq uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if seq >= m.nextReportSeq {
		return fmt.Errorf("tablet: acknowledged sequence %d is not less than next sequence %d", seq, m.nextReportSeq)
	}
	for id, entry := range m.dirty {
		if entry.changeSeq <= seq {
			delete(m.dirty, id)
		}
	}
	return nil
}
