package mtable_test

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/openvstorage/volumedriver-sub006/catchup"
	"github.com/openvstorage/volumedriver-sub006/engine"
	"github.com/openvstorage/volumedriver-sub006/mtable"
	"github.com/openvstorage/volumedriver-sub006/table"
	"github.com/openvstorage/volumedriver-sub006/wire"
)

func newManagedTable(backend catchup.BackendInterface, namespace string) (*mtable.ManagedTable, func()) {
	dir, err := os.MkdirTemp("", "mtable-test-*")
	Expect(err).NotTo(HaveOccurred())
	eng, err := engine.Open(dir, engine.Options{})
	Expect(err).NotTo(HaveOccurred())
	Expect(eng.CreateFamily(namespace)).To(Succeed())

	raw := table.New(namespace, eng)
	m := mtable.New(namespace, raw, backend, mtable.Config{PollInterval: time.Hour})
	return m, func() { _ = eng.Close(); _ = os.RemoveAll(dir) }
}

var _ = Describe("ManagedTable", func() {
	var (
		backend   *catchup.MemBackend
		mt        *mtable.ManagedTable
		cleanup   func()
		namespace = "ns"
		ctx       = context.Background()
	)

	BeforeEach(func() {
		backend = catchup.NewMemBackend()
		backend.CreateNamespace(namespace)
		backend.AppendTLog(namespace, []catchup.Record{{Key: []byte("a"), Value: []byte("1")}})
		mt, cleanup = newManagedTable(backend, namespace)
	})

	AfterEach(func() {
		cleanup()
	})

	Describe("initial state", func() {
		It("starts as a slave with owner tag zero", func() {
			Expect(mt.GetRole()).To(Equal(wire.RoleSlave))
			Expect(mt.GetOwnerTag()).To(BeEquivalentTo(0))
		})

		It("rejects writes as a slave", func() {
			err := mt.MultiSet([]engine.Record{{Key: []byte("x"), Value: []byte("y")}}, false, 0)
			Expect(err).To(HaveOccurred())
		})

		It("allows reads as a slave after catching up", func() {
			_, err := mt.CatchUp(ctx, false)
			Expect(err).NotTo(HaveOccurred())
			vals, err := mt.MultiGet([][]byte{[]byte("a")})
			Expect(err).NotTo(HaveOccurred())
			Expect(vals[0]).To(Equal([]byte("1")))
		})
	})

	Describe("set_role", func() {
		It("becomes master and is immediately caught up", func() {
			Expect(mt.SetRole(ctx, wire.RoleMaster, 42)).To(Succeed())
			Expect(mt.GetRole()).To(Equal(wire.RoleMaster))
			Expect(mt.GetOwnerTag()).To(BeEquivalentTo(42))

			vals, err := mt.MultiGet([][]byte{[]byte("a")})
			Expect(err).NotTo(HaveOccurred())
			Expect(vals[0]).To(Equal([]byte("1")))

			counters := mt.GetCounters(false)
			Expect(counters.FullRebuilds).To(BeEquivalentTo(1))
		})

		It("accepts fenced writes once master", func() {
			Expect(mt.SetRole(ctx, wire.RoleMaster, 42)).To(Succeed())
			Expect(mt.MultiSet([]engine.Record{{Key: []byte("b"), Value: []byte("2")}}, false, 42)).To(Succeed())
			Expect(mt.MultiSet([]engine.Record{{Key: []byte("c"), Value: []byte("3")}}, false, 7)).To(HaveOccurred())
		})
	})

	Describe("background cancellation", func() {
		It("does not deadlock when set_role races an active background tick", func() {
			// PollInterval: time.Hour everywhere else in this suite never lets
			// the background loop land mid-tick while set_role cancels it;
			// a sub-millisecond interval forces that race on every iteration.
			dir, err := os.MkdirTemp("", "mtable-test-fast-*")
			Expect(err).NotTo(HaveOccurred())
			defer os.RemoveAll(dir)
			eng, err := engine.Open(dir, engine.Options{})
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = eng.Close() }()
			Expect(eng.CreateFamily(namespace)).To(Succeed())

			raw := table.New(namespace, eng)
			racyMT := mtable.New(namespace, raw, backend, mtable.Config{PollInterval: time.Millisecond})
			defer racyMT.StopBackground()

			done := make(chan struct{})
			go func() {
				defer close(done)
				for i := 0; i < 200; i++ {
					role := wire.RoleSlave
					if i%2 == 0 {
						role = wire.RoleMaster
					}
					_ = racyMT.SetRole(ctx, role, uint64(i))
				}
			}()

			Eventually(done, 10*time.Second, time.Millisecond).Should(BeClosed())
		})
	})

	Describe("apply_relocations", func() {
		It("is a no-op on a master whose scrub id already matches", func() {
			Expect(mt.SetRole(ctx, wire.RoleMaster, 1)).To(Succeed())
			err := mt.ApplyRelocations(ctx, mustScrubID(backend, namespace), 0, nil)
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a master whose scrub id no longer matches", func() {
			Expect(mt.SetRole(ctx, wire.RoleMaster, 1)).To(Succeed())
			stale := mustScrubID(backend, namespace)
			bumped := backend.BumpScrubID(namespace)
			_ = stale
			err := mt.ApplyRelocations(ctx, bumped, 0, nil)
			Expect(err).To(HaveOccurred())
		})
	})
})

func mustScrubID(backend *catchup.MemBackend, namespace string) uuid.UUID {
	_, s, err := backend.Tip(context.Background(), namespace)
	Expect(err).NotTo(HaveOccurred())
	return s
}
