//go:build integration

// Integration scenarios for the builder: interrupted and resumed builds and
// parallel instances, run against the in-memory provider and pusher.
//
// Run these tests with:
//
//	go test -tags=integration ./internal/orchestration/...
package orchestration_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/imamik/dropship/internal/orchestration"
	"github.com/imamik/dropship/internal/provisioning"
	dstesting "github.com/imamik/dropship/internal/testing"
)

// suiteT backs the fixtures that need a *testing.T.
var suiteT *testing.T

// TestOrchestrationIntegration is the entry point for Ginkgo tests.
func TestOrchestrationIntegration(t *testing.T) {
	suiteT = t
	RegisterFailHandler(Fail)
	RunSpecs(t, "Orchestration Integration Suite")
}

func newBuilder(lab *dstesting.Lab) *orchestration.Builder {
	return orchestration.NewBuilder(lab.Config, lab.Provider, lab.Registry, lab.Pusher, lab.Context(suiteT).Resolver,
		orchestration.WithObserver(lab.Observer),
		orchestration.WithTimeouts(dstesting.FastTimeouts()))
}

// leaseEveryVM answers dhcp-collect with an address for the first NIC of
// every VM id the fake provider can hand out.
func leaseEveryVM(lab *dstesting.Lab) {
	lab.Pusher.Leases = map[string]string{}
	for vmid := 100; vmid < 120; vmid++ {
		lab.Pusher.Leases[dstesting.MACFor(vmid, 0)] = fmt.Sprintf("10.0.0.%d", vmid)
	}
}

var _ = Describe("Builder", func() {
	var (
		ctx context.Context
		lab *dstesting.Lab
	)

	BeforeEach(func() {
		ctx = context.Background()
		lab = dstesting.NewLab(suiteT)
		leaseEveryVM(lab)
	})

	Context("when a build is interrupted", func() {
		It("resumes from the ledgers without cloning again", func() {
			b := newBuilder(lab)
			Expect(b.AddInstance(lab.Instance(suiteT, "corp1", "vmbr10", "7"))).To(Succeed())

			By("failing the client bootstrap push")
			lab.Pusher.ExitCodes["corp1_clients_bootstrap/bootstrap"] = 2
			err := b.RunBuild(ctx)
			var pe *provisioning.PhaseError
			Expect(errors.As(err, &pe)).To(BeTrue())
			Expect(pe.Phase).To(Equal(provisioning.PhaseBootstrap))
			Expect(lab.Provider.CallsWithPrefix("clone")).To(HaveLen(4))

			rows, err := b.Status()
			Expect(err).NotTo(HaveOccurred())
			Expect(rows[0].State).To(Equal(orchestration.LedgerDone))
			Expect(rows[1].State).To(Equal(orchestration.LedgerInProgress))

			By("running the build again once the push succeeds")
			delete(lab.Pusher.ExitCodes, "corp1_clients_bootstrap/bootstrap")
			resumed := newBuilder(lab)
			Expect(resumed.AddInstance(lab.Instance(suiteT, "corp1", "vmbr10", "7"))).To(Succeed())
			Expect(resumed.RunBuild(ctx)).To(Succeed())

			Expect(lab.Provider.CallsWithPrefix("clone")).To(HaveLen(4))
			Expect(lab.Observer.Types()).To(ContainElement(provisioning.EventPhaseSkipped))
		})

		It("does nothing on a completed build", func() {
			b := newBuilder(lab)
			Expect(b.AddInstance(lab.Instance(suiteT, "corp1", "vmbr10", "7"))).To(Succeed())
			Expect(b.RunBuild(ctx)).To(Succeed())
			pushes := len(lab.Pusher.Keys())

			again := newBuilder(lab)
			Expect(again.AddInstance(lab.Instance(suiteT, "corp1", "vmbr10", "7"))).To(Succeed())
			Expect(again.RunBuild(ctx)).To(Succeed())

			Expect(lab.Pusher.Keys()).To(HaveLen(pushes))
			Expect(lab.Provider.CallsWithPrefix("clone")).To(HaveLen(4))
		})
	})

	Context("with parallel instances", func() {
		It("builds every instance to completion", func() {
			lab.Config.Parallel = true
			b := newBuilder(lab)
			for i, name := range []string{"corp1", "corp2", "corp3"} {
				inst := lab.Instance(suiteT, name, fmt.Sprintf("vmbr1%d", i), fmt.Sprint(7+i))
				Expect(b.AddInstance(inst)).To(Succeed())
			}

			Expect(b.RunBuild(ctx)).To(Succeed())

			Expect(lab.Provider.CallsWithPrefix("clone")).To(HaveLen(12))
			rows, err := b.Status()
			Expect(err).NotTo(HaveOccurred())
			Expect(rows).To(HaveLen(15))
			for _, row := range rows {
				Expect(row.State).To(Equal(orchestration.LedgerDone), "%s %s %s", row.Instance, row.Stage, row.Group)
			}
			Expect(lab.Pusher.Keys()).To(ContainElements("corp1_post/post", "corp2_post/post", "corp3_post/post"))
		})
	})
})
