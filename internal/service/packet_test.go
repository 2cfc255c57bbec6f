package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vins-anity/trailpack/internal/chain"
	"github.com/vins-anity/trailpack/internal/model"
	"github.com/vins-anity/trailpack/internal/service"
	"github.com/vins-anity/trailpack/internal/store"
	"github.com/vins-anity/trailpack/internal/summary"
)

// buildChain produces a valid hash chain for the given event types.
func buildChain(taskID int64, types ...model.EventType) []model.Event {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	events := make([]model.Event, 0, len(types))
	prevHash := chain.Genesis

	for i, t := range types {
		ev := model.Event{
			ID:            int64(1000 + i),
			TaskID:        taskID,
			Seq:           int64(i + 1),
			EventType:     t,
			Payload:       json.RawMessage(fmt.Sprintf(`{"step":%d}`, i)),
			TriggerSource: "github:webhook",
			PrevHash:      prevHash,
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		hash, err := chain.Hash(&ev, prevHash)
		Expect(err).NotTo(HaveOccurred())
		ev.EventHash = hash
		prevHash = hash
		events = append(events, ev)
	}

	return events
}

var _ = Describe("PacketService", func() {
	var (
		stores     *mockStores
		txRunner   *mockTxRunner
		summarizer *mockSummarizer
		producer   *mockProducer
		svc        service.PacketService

		task   *model.Task
		events []model.Event
	)

	BeforeEach(func() {
		stores = newMockStores()
		txRunner = &mockTxRunner{stores: stores}
		summarizer = &mockSummarizer{}
		producer = &mockProducer{}
		svc = service.NewPacketService(stores, txRunner, summarizer, producer, nil)

		task = &model.Task{ID: 101, WorkspaceID: 7, TaskKey: "PROJ-142"}
		events = nil

		stores.tasks.getByIDFn = func(ctx context.Context, id int64) (*model.Task, error) {
			if id == task.ID {
				return task, nil
			}
			return nil, store.ErrNotFound
		}
		stores.events.listByTaskFn = func(ctx context.Context, taskID int64) ([]model.Event, error) {
			return events, nil
		}
		stores.events.listByIDsFn = func(ctx context.Context, ids []int64) ([]model.Event, error) {
			return events, nil
		}
	})

	Describe("Assemble", func() {
		It("creates a draft packet for a chain without closure events", func() {
			events = buildChain(task.ID, model.EventHandshake, model.EventPROpened)

			packet, err := svc.Assemble(context.Background(), task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(packet.Status).To(Equal(model.PacketDraft))
			Expect(packet.EventIDs).To(HaveLen(2))
			Expect(packet.TaskID).To(Equal(task.ID))
		})

		It("finalizes the six-event closure scenario", func() {
			events = buildChain(task.ID,
				model.EventHandshake,
				model.EventPROpened,
				model.EventPRMerged,
				model.EventCIPassed,
				model.EventClosureProposed,
				model.EventClosureFinalized,
			)

			packet, err := svc.Assemble(context.Background(), task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(packet.Status).To(Equal(model.PacketFinalized))
			Expect(packet.EventIDs).To(HaveLen(6))
			Expect(packet.FinalizedAt).NotTo(BeNil())
		})

		It("returns a packet to draft after a veto", func() {
			events = buildChain(task.ID,
				model.EventHandshake,
				model.EventClosureProposed,
				model.EventClosureVetoed,
			)

			packet, err := svc.Assemble(context.Background(), task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(packet.Status).To(Equal(model.PacketDraft))
			Expect(packet.PendingSince).To(BeNil())
		})

		It("never finalizes without a pending proposal", func() {
			events = buildChain(task.ID, model.EventHandshake, model.EventClosureFinalized)

			packet, err := svc.Assemble(context.Background(), task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(packet.Status).To(Equal(model.PacketDraft))
		})

		It("assembles a pending second-cycle packet after a finalized one", func() {
			events = buildChain(task.ID,
				model.EventHandshake,
				model.EventClosureProposed,
				model.EventClosureFinalized,
				model.EventPROpened,
				model.EventClosureProposed,
			)

			packet, err := svc.Assemble(context.Background(), task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(packet.Status).To(Equal(model.PacketPending))
			// Only the events since the first cycle closed.
			Expect(packet.EventIDs).To(Equal([]int64{events[3].ID, events[4].ID}))
			Expect(packet.PendingSince).NotTo(BeNil())
			Expect(packet.PendingSince.Equal(events[4].CreatedAt)).To(BeTrue())
			Expect(packet.FinalizedAt).To(BeNil())
		})

		It("opens an empty draft when the chain ends at a finalization", func() {
			events = buildChain(task.ID,
				model.EventHandshake,
				model.EventClosureProposed,
				model.EventClosureFinalized,
			)
			finalizedAt := events[2].CreatedAt
			stores.packets.getLatestByTaskFn = func(ctx context.Context, taskID int64) (*model.ProofPacket, error) {
				return &model.ProofPacket{
					ID:          77,
					TaskID:      task.ID,
					Status:      model.PacketFinalized,
					FinalizedAt: &finalizedAt,
				}, nil
			}

			packet, err := svc.Assemble(context.Background(), task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(packet.Status).To(Equal(model.PacketDraft))
			Expect(packet.EventIDs).To(BeEmpty())
			Expect(packet.FinalizedAt).To(BeNil())
		})

		It("updates the existing open packet instead of creating a second one", func() {
			events = buildChain(task.ID, model.EventHandshake, model.EventClosureProposed)
			open := &model.ProofPacket{ID: 55, TaskID: task.ID, Status: model.PacketDraft}
			stores.packets.getOpenByTaskFn = func(ctx context.Context, taskID int64) (*model.ProofPacket, error) {
				return open, nil
			}
			created := false
			stores.packets.createFn = func(ctx context.Context, p *model.ProofPacket) (*model.ProofPacket, error) {
				created = true
				return p, nil
			}

			packet, err := svc.Assemble(context.Background(), task.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(created).To(BeFalse())
			Expect(packet.ID).To(Equal(open.ID))
			Expect(packet.Status).To(Equal(model.PacketPending))
			Expect(packet.PendingSince).NotTo(BeNil())
		})

		It("refuses to assemble from a corrupted chain", func() {
			events = buildChain(task.ID, model.EventHandshake, model.EventPROpened)
			events[1].Payload = json.RawMessage(`{"step":99}`)

			_, err := svc.Assemble(context.Background(), task.ID)
			Expect(err).To(MatchError(chain.ErrCorrupted))
		})

		It("fails for an unknown task", func() {
			_, err := svc.Assemble(context.Background(), 999)
			Expect(err).To(MatchError(service.ErrTaskNotFound))
		})
	})

	Describe("Summarize", func() {
		var packet *model.ProofPacket

		BeforeEach(func() {
			events = buildChain(task.ID, model.EventHandshake, model.EventPRMerged)
			packet = &model.ProofPacket{ID: 55, TaskID: task.ID, Status: model.PacketDraft}
			stores.packets.getByIDFn = func(ctx context.Context, id int64) (*model.ProofPacket, error) {
				if id == packet.ID {
					return packet, nil
				}
				return nil, store.ErrNotFound
			}
		})

		It("generates and persists a summary inline", func() {
			summarizer.result = &summary.Result{Text: "Two verified events.", Model: "model-a"}
			var updated *model.ProofPacket
			stores.packets.updateFn = func(ctx context.Context, p *model.ProofPacket) (*model.ProofPacket, error) {
				updated = p
				return p, nil
			}

			result, err := svc.Summarize(context.Background(), service.SummarizeParams{PacketID: packet.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Enqueued).To(BeFalse())
			Expect(updated).NotTo(BeNil())
			Expect(*updated.Summary).To(Equal("Two verified events."))
			Expect(*updated.SummaryModel).To(Equal("model-a"))
		})

		It("keeps a finalized packet's summary fixed", func() {
			text, modelID := "committed summary", "model-a"
			packet.Status = model.PacketFinalized
			packet.Summary = &text
			packet.SummaryModel = &modelID

			result, err := svc.Summarize(context.Background(), service.SummarizeParams{PacketID: packet.ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(summarizer.calls).To(BeZero())
			Expect(*result.Packet.Summary).To(Equal(text))
		})

		It("enqueues instead of generating when asked for async", func() {
			result, err := svc.Summarize(context.Background(), service.SummarizeParams{
				PacketID: packet.ID,
				Options:  summary.Options{IncludeCommits: true, Tone: "neutral"},
				Async:    true,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Enqueued).To(BeTrue())
			Expect(summarizer.calls).To(BeZero())
			Expect(producer.enqueued).To(HaveLen(1))
			Expect(producer.enqueued[0].PacketID).To(Equal(packet.ID))
			Expect(producer.enqueued[0].IncludeCommits).To(BeTrue())
		})

		It("fails for an unknown packet", func() {
			_, err := svc.Summarize(context.Background(), service.SummarizeParams{PacketID: 404})
			Expect(err).To(MatchError(service.ErrPacketNotFound))
		})
	})

	Describe("Export", func() {
		It("renders a finalized packet and marks it exported", func() {
			events = buildChain(task.ID, model.EventHandshake, model.EventClosureProposed, model.EventClosureFinalized)
			text := "done and dusted"
			packet := &model.ProofPacket{
				ID:       55,
				TaskID:   task.ID,
				Status:   model.PacketFinalized,
				EventIDs: []int64{1000, 1001, 1002},
				Summary:  &text,
			}
			stores.packets.getByIDFn = func(ctx context.Context, id int64) (*model.ProofPacket, error) {
				return packet, nil
			}
			var updated *model.ProofPacket
			stores.packets.updateFn = func(ctx context.Context, p *model.ProofPacket) (*model.ProofPacket, error) {
				updated = p
				return p, nil
			}

			doc, exported, err := svc.Export(context.Background(), packet.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(doc).To(ContainSubstring("PROJ-142"))
			Expect(doc).To(ContainSubstring("done and dusted"))
			Expect(doc).To(ContainSubstring("closure_finalized"))
			Expect(doc).To(ContainSubstring("chain head `" + events[2].EventHash[:12] + "`"))
			Expect(exported.Status).To(Equal(model.PacketExported))
			Expect(updated.ExportedAt).NotTo(BeNil())
		})

		It("is repeatable once exported", func() {
			events = buildChain(task.ID, model.EventHandshake)
			packet := &model.ProofPacket{ID: 55, TaskID: task.ID, Status: model.PacketExported, EventIDs: []int64{1000}}
			stores.packets.getByIDFn = func(ctx context.Context, id int64) (*model.ProofPacket, error) {
				return packet, nil
			}

			_, _, err := svc.Export(context.Background(), packet.ID)
			Expect(err).NotTo(HaveOccurred())
		})

		It("refuses to export a draft packet", func() {
			packet := &model.ProofPacket{ID: 55, TaskID: task.ID, Status: model.PacketDraft}
			stores.packets.getByIDFn = func(ctx context.Context, id int64) (*model.ProofPacket, error) {
				return packet, nil
			}

			_, _, err := svc.Export(context.Background(), packet.ID)
			Expect(err).To(MatchError(service.ErrPacketNotFinalized))
		})
	})

	Describe("Share", func() {
		It("mints a revocable token for a finalized packet", func() {
			packet := &model.ProofPacket{ID: 55, TaskID: task.ID, Status: model.PacketFinalized}
			stores.packets.getByIDFn = func(ctx context.Context, id int64) (*model.ProofPacket, error) {
				return packet, nil
			}
			var stored *string
			stores.packets.setShareTokenFn = func(ctx context.Context, id int64, token *string) error {
				stored = token
				return nil
			}

			token, err := svc.Share(context.Background(), packet.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(HaveLen(64))
			Expect(stored).NotTo(BeNil())
			Expect(*stored).To(Equal(token))

			Expect(svc.Unshare(context.Background(), packet.ID)).To(Succeed())
			Expect(stored).To(BeNil())
		})

		It("returns the existing token instead of rotating it", func() {
			existing := "already-shared"
			packet := &model.ProofPacket{ID: 55, TaskID: task.ID, Status: model.PacketFinalized, ShareToken: &existing}
			stores.packets.getByIDFn = func(ctx context.Context, id int64) (*model.ProofPacket, error) {
				return packet, nil
			}

			token, err := svc.Share(context.Background(), packet.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(token).To(Equal(existing))
		})

		It("refuses to share a packet that is not finalized", func() {
			packet := &model.ProofPacket{ID: 55, TaskID: task.ID, Status: model.PacketPending}
			stores.packets.getByIDFn = func(ctx context.Context, id int64) (*model.ProofPacket, error) {
				return packet, nil
			}

			_, err := svc.Share(context.Background(), packet.ID)
			Expect(err).To(MatchError(service.ErrPacketNotFinalized))
		})

		It("resolves a view through a share token", func() {
			events = buildChain(task.ID, model.EventHandshake)
			packet := &model.ProofPacket{ID: 55, TaskID: task.ID, Status: model.PacketFinalized, EventIDs: []int64{1000}}
			stores.packets.getByShareTokenFn = func(ctx context.Context, token string) (*model.ProofPacket, error) {
				if token == "good-token" {
					return packet, nil
				}
				return nil, store.ErrNotFound
			}

			view, err := svc.GetShared(context.Background(), "good-token")
			Expect(err).NotTo(HaveOccurred())
			Expect(view.Task.TaskKey).To(Equal("PROJ-142"))
			Expect(view.Events).To(HaveLen(1))

			_, err = svc.GetShared(context.Background(), "bad-token")
			Expect(err).To(MatchError(service.ErrPacketNotFound))
		})
	})
})
