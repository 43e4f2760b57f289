// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

//go:build integration

package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/internal/ids"
	"github.com/tessera-dev/tessera/internal/install"
)

func newDefinition(name string, points ...string) *catalog.Definition {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &catalog.Definition{
		ID:              ids.New(),
		Name:            name,
		Version:         "1.0.0",
		Category:        catalog.CategoryUI,
		ExtensionPoints: points,
		Metadata:        []byte(`{}`),
		Status:          catalog.StatusActive,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

var _ = Describe("Postgres repositories", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("plugins", func() {
		It("round-trips a definition and filters by extension point", func() {
			def := newDefinition("sidebar-notes", "event.details.sidebar")
			Expect(db.Plugins().Create(ctx, def)).To(Succeed())

			got, err := db.Plugins().Get(ctx, def.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Name).To(Equal("sidebar-notes"))
			Expect(got.ExtensionPoints).To(ConsistOf("event.details.sidebar"))

			defs, err := db.Plugins().List(ctx, catalog.Filter{ExtensionPoint: "event.details.sidebar"})
			Expect(err).NotTo(HaveOccurred())
			Expect(defs).To(ContainElement(HaveField("ID", def.ID)))
		})

		It("rejects a duplicate name and version", func() {
			def := newDefinition("dup-plugin", "dashboard.widget")
			Expect(db.Plugins().Create(ctx, def)).To(Succeed())

			again := newDefinition("dup-plugin", "dashboard.widget")
			Expect(db.Plugins().Create(ctx, again)).NotTo(Succeed())
		})
	})

	Describe("installations", func() {
		It("enforces one installation per plugin and organization", func() {
			def := newDefinition("widget-one", "dashboard.widget")
			Expect(db.Plugins().Create(ctx, def)).To(Succeed())

			now := time.Now().UTC()
			inst := &install.Installation{
				ID: ids.New(), PluginID: def.ID, OrganizationID: "org-a", Enabled: true,
				Configuration: map[string]any{"title": "Sales"}, InstalledVersion: def.Version,
				CreatedAt: now, UpdatedAt: now,
			}
			Expect(db.Installations().Create(ctx, inst)).To(Succeed())

			dup := *inst
			dup.ID = ids.New()
			err := db.Installations().Create(ctx, &dup)
			Expect(err).To(MatchError(install.ErrConflict))

			listed, err := db.Installations().List(ctx, install.Filter{
				OrganizationID: "org-a", EnabledOnly: true, ExtensionPoint: "dashboard.widget",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(listed).To(HaveLen(1))
			Expect(listed[0].Configuration).To(HaveKeyWithValue("title", "Sales"))
		})
	})
})
