package service_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vins-anity/trailpack/internal/chain"
	"github.com/vins-anity/trailpack/internal/model"
	"github.com/vins-anity/trailpack/internal/service"
	"github.com/vins-anity/trailpack/internal/store"
	"github.com/vins-anity/trailpack/internal/verify"
)

const (
	testSecret      = "hush-hush"
	testWorkspaceID = int64(7)
)

func signHex(secret string, msg []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil))
}

func githubHeaders(body []byte, event, delivery string) map[string]string {
	return map[string]string{
		service.HeaderGitHubSig256: "sha256=" + signHex(testSecret, body),
		"X-Github-Event":           event,
		"X-Github-Delivery":        delivery,
	}
}

var prOpenedBody = []byte(`{"action":"opened","pull_request":{"number":12,"title":"PROJ-142 billing exports","head":{"ref":"feature/PROJ-142-exports"}},"sender":{"login":"dev"}}`)

var _ = Describe("IngestService", func() {
	var (
		stores   *mockStores
		txRunner *mockTxRunner
		svc      service.IngestService

		appended   []*model.Event
		deliveries map[string]bool
		task       *model.Task
	)

	BeforeEach(func() {
		stores = newMockStores()
		txRunner = &mockTxRunner{stores: stores}
		svc = service.NewIngestService(stores, txRunner, nil)

		appended = nil
		deliveries = map[string]bool{}
		task = &model.Task{ID: 101, WorkspaceID: testWorkspaceID, TaskKey: "PROJ-142"}

		stores.workspaces.getSecretFn = func(ctx context.Context, workspaceID int64, provider model.Provider) (string, error) {
			return testSecret, nil
		}
		stores.tasks.getByWorkspaceAndKeyFn = func(ctx context.Context, workspaceID int64, taskKey string) (*model.Task, error) {
			if taskKey == task.TaskKey {
				return task, nil
			}
			return nil, store.ErrNotFound
		}
		stores.deliveries.insertFn = func(ctx context.Context, provider model.Provider, deliveryID string) (bool, error) {
			key := string(provider) + ":" + deliveryID
			if deliveries[key] {
				return false, nil
			}
			deliveries[key] = true
			return true, nil
		}
		stores.events.getTailFn = func(ctx context.Context, taskID int64) (*model.Event, error) {
			if len(appended) == 0 {
				return nil, store.ErrNotFound
			}
			return appended[len(appended)-1], nil
		}
		stores.events.createFn = func(ctx context.Context, ev *model.Event) (*model.Event, error) {
			appended = append(appended, ev)
			return ev, nil
		}
		stores.events.listByTaskFn = func(ctx context.Context, taskID int64) ([]model.Event, error) {
			evs := make([]model.Event, len(appended))
			for i, ev := range appended {
				evs[i] = *ev
			}
			return evs, nil
		}
	})

	ingest := func(body []byte, headers map[string]string) (*service.IngestResult, error) {
		return svc.Ingest(context.Background(), service.IngestParams{
			WorkspaceID: testWorkspaceID,
			Provider:    model.ProviderGitHub,
			Body:        body,
			Headers:     headers,
		})
	}

	It("appends a verified delivery as the chain's first event", func() {
		result, err := ingest(prOpenedBody, githubHeaders(prOpenedBody, "pull_request", "dlv-1"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Duplicate).To(BeFalse())
		Expect(result.Event).NotTo(BeNil())

		ev := result.Event
		Expect(ev.TaskID).To(Equal(task.ID))
		Expect(ev.Seq).To(Equal(int64(1)))
		Expect(ev.EventType).To(Equal(model.EventPROpened))
		Expect(ev.PrevHash).To(Equal(chain.Genesis))

		expected, hashErr := chain.Hash(ev, chain.Genesis)
		Expect(hashErr).NotTo(HaveOccurred())
		Expect(ev.EventHash).To(Equal(expected))
		Expect(stores.events.lockCalls).To(Equal(1))
	})

	It("links consecutive appends into a chain", func() {
		_, err := ingest(prOpenedBody, githubHeaders(prOpenedBody, "pull_request", "dlv-1"))
		Expect(err).NotTo(HaveOccurred())

		merged := []byte(`{"action":"closed","pull_request":{"number":12,"title":"PROJ-142 billing exports","merged":true,"head":{"ref":"feature/PROJ-142-exports"}}}`)
		_, err = ingest(merged, githubHeaders(merged, "pull_request", "dlv-2"))
		Expect(err).NotTo(HaveOccurred())

		Expect(appended).To(HaveLen(2))
		Expect(appended[1].PrevHash).To(Equal(appended[0].EventHash))
		Expect(appended[1].Seq).To(Equal(int64(2)))
		Expect(appended[1].CreatedAt).To(BeTemporally(">=", appended[0].CreatedAt))
		Expect(chain.Verify([]model.Event{*appended[0], *appended[1]})).To(Succeed())
	})

	It("dedupes a replayed delivery without appending twice", func() {
		headers := githubHeaders(prOpenedBody, "pull_request", "dlv-1")

		first, err := ingest(prOpenedBody, headers)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.Duplicate).To(BeFalse())

		second, err := ingest(prOpenedBody, headers)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.Duplicate).To(BeTrue())
		Expect(second.Event).To(BeNil())
		Expect(appended).To(HaveLen(1))
	})

	It("rejects a wrong signature before touching any store", func() {
		headers := githubHeaders(prOpenedBody, "pull_request", "dlv-1")
		headers[service.HeaderGitHubSig256] = "sha256=" + signHex("wrong-secret", prOpenedBody)

		_, err := ingest(prOpenedBody, headers)
		Expect(err).To(MatchError(verify.ErrSignatureInvalid))
		Expect(appended).To(BeEmpty())
		Expect(deliveries).To(BeEmpty())
	})

	It("hard-rejects when the workspace has no secret for the provider", func() {
		stores.workspaces.getSecretFn = func(ctx context.Context, workspaceID int64, provider model.Provider) (string, error) {
			return "", store.ErrNotFound
		}

		_, err := ingest(prOpenedBody, githubHeaders(prOpenedBody, "pull_request", "dlv-1"))
		Expect(err).To(MatchError(verify.ErrSecretNotConfigured))
	})

	It("acknowledges unsupported provider events without appending", func() {
		body := []byte(`{"action":"labeled","pull_request":{"number":12,"title":"PROJ-142","head":{"ref":"feature/PROJ-142"}}}`)
		result, err := ingest(body, githubHeaders(body, "pull_request", "dlv-9"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Ignored).To(BeTrue())
		Expect(result.IgnoreReason).To(Equal("unsupported_event"))
		Expect(appended).To(BeEmpty())
	})

	It("acknowledges events for unknown tasks without appending", func() {
		body := []byte(`{"action":"opened","pull_request":{"number":3,"title":"OTHER-9 thing","head":{"ref":"feature/OTHER-9"}}}`)
		result, err := ingest(body, githubHeaders(body, "pull_request", "dlv-3"))
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Ignored).To(BeTrue())
		Expect(result.IgnoreReason).To(Equal("unknown_task"))
		Expect(appended).To(BeEmpty())
	})

	It("creates the task on a handshake event", func() {
		var upserted *model.Task
		stores.tasks.upsertFn = func(ctx context.Context, t *model.Task) (*model.Task, error) {
			upserted = t
			return t, nil
		}

		body := []byte(`{"webhookEvent":"jira:issue_created","timestamp":1712000000000,"issue":{"key":"PROJ-900"},"user":{"name":"pm"}}`)
		headers := map[string]string{service.HeaderJiraSignature: signHex(testSecret, body)}

		result, err := svc.Ingest(context.Background(), service.IngestParams{
			WorkspaceID: testWorkspaceID,
			Provider:    model.ProviderJira,
			Body:        body,
			Headers:     headers,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Event.EventType).To(Equal(model.EventHandshake))
		Expect(upserted).NotTo(BeNil())
		Expect(upserted.TaskKey).To(Equal("PROJ-900"))
		Expect(upserted.WorkspaceID).To(Equal(testWorkspaceID))
	})

	It("advances the open packet when a closure event arrives", func() {
		open := &model.ProofPacket{ID: 55, TaskID: task.ID, Status: model.PacketDraft}
		stores.packets.getOpenByTaskFn = func(ctx context.Context, taskID int64) (*model.ProofPacket, error) {
			return open, nil
		}
		var updated *model.ProofPacket
		stores.packets.updateFn = func(ctx context.Context, p *model.ProofPacket) (*model.ProofPacket, error) {
			updated = p
			return p, nil
		}

		// A Jira transition to Done proposes closure.
		body := []byte(`{"webhookEvent":"jira:issue_updated","timestamp":1712000001000,"issue":{"key":"PROJ-142"},"changelog":{"items":[{"field":"status","toString":"Done"}]}}`)
		headers := map[string]string{service.HeaderJiraSignature: signHex(testSecret, body)}

		result, err := svc.Ingest(context.Background(), service.IngestParams{
			WorkspaceID: testWorkspaceID,
			Provider:    model.ProviderJira,
			Body:        body,
			Headers:     headers,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Event.EventType).To(Equal(model.EventClosureProposed))
		Expect(updated).NotTo(BeNil())
		Expect(updated.Status).To(Equal(model.PacketPending))
		Expect(updated.PendingSince).NotTo(BeNil())
	})

	It("opens a second-cycle packet when closure is proposed after finalization", func() {
		// First cycle already closed: its packet is immutable and no
		// open packet remains.
		appended = []*model.Event{
			{ID: 9001, TaskID: task.ID, Seq: 1, EventType: model.EventHandshake},
			{ID: 9002, TaskID: task.ID, Seq: 2, EventType: model.EventClosureProposed},
			{ID: 9003, TaskID: task.ID, Seq: 3, EventType: model.EventClosureFinalized},
		}
		stores.packets.getOpenByTaskFn = func(ctx context.Context, taskID int64) (*model.ProofPacket, error) {
			return nil, store.ErrNotFound
		}
		var created *model.ProofPacket
		stores.packets.createFn = func(ctx context.Context, p *model.ProofPacket) (*model.ProofPacket, error) {
			created = p
			return p, nil
		}

		body := []byte(`{"webhookEvent":"jira:issue_updated","timestamp":1712000002000,"issue":{"key":"PROJ-142"},"changelog":{"items":[{"field":"status","toString":"Done"}]}}`)
		headers := map[string]string{service.HeaderJiraSignature: signHex(testSecret, body)}

		result, err := svc.Ingest(context.Background(), service.IngestParams{
			WorkspaceID: testWorkspaceID,
			Provider:    model.ProviderJira,
			Body:        body,
			Headers:     headers,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Event.EventType).To(Equal(model.EventClosureProposed))

		Expect(created).NotTo(BeNil())
		Expect(created.Status).To(Equal(model.PacketPending))
		Expect(created.PendingSince).NotTo(BeNil())
		Expect(created.FinalizedAt).To(BeNil())
		// Only the new cycle's events, not the closed epoch's.
		Expect(created.EventIDs).To(Equal([]int64{result.Event.ID}))
	})

	It("wraps storage failures as retryable persistence errors", func() {
		stores.events.createFn = func(ctx context.Context, ev *model.Event) (*model.Event, error) {
			return nil, fmt.Errorf("connection reset")
		}

		_, err := ingest(prOpenedBody, githubHeaders(prOpenedBody, "pull_request", "dlv-1"))
		Expect(err).To(MatchError(service.ErrPersistence))
	})
})
