// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/tidwall/gjson"

	"github.com/tessera-dev/tessera/internal/httpapi"
	"github.com/tessera-dev/tessera/internal/proxy"
)

const paymentPoint = "checkout.payment_method"

func exampleBundle() []byte {
	GinkgoHelper()
	data, err := os.ReadFile(filepath.Join("..", "..", "plugins", "payment-notes", "bundle.js"))
	Expect(err).NotTo(HaveOccurred())
	return data
}

func mustJSON(v any) []byte {
	GinkgoHelper()
	data, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	return data
}

var _ = Describe("plugin lifecycle", Ordered, func() {
	const org = "org-integration"
	var pluginID, installationID string

	widgetPath := func(eventID string) string {
		return "/widgets/" + org + "/" + paymentPoint + "?data=" + url.QueryEscape(`{"eventId":"`+eventID+`","amount":40}`)
	}

	It("registers a plugin in the catalog", func() {
		status, body := call(http.MethodPost, "/plugins", mustJSON(map[string]any{
			"name":            "payment-notes",
			"version":         "1.0.0",
			"category":        "payment",
			"extensionPoints": []string{paymentPoint, "event.details.sidebar"},
			"permissions":     []string{"proxy.quote"},
			"metadata": map[string]any{
				"displayName": "Payment Notes",
				"internal":    map[string]any{"webhookSecret": "whsec_1"},
			},
		}), true)
		Expect(status).To(Equal(http.StatusCreated), string(body))
		pluginID = gjson.GetBytes(body, "data.id").String()
		Expect(pluginID).To(HaveLen(26))
		Expect(gjson.GetBytes(body, "data.status").String()).To(Equal("active"))
	})

	It("stores and serves the bundle", func() {
		status, body := call(http.MethodPut, "/plugins/"+pluginID+"/bundle", exampleBundle(), true)
		Expect(status).To(Equal(http.StatusCreated), string(body))
		Expect(gjson.GetBytes(body, "data.key").String()).To(Equal("plugins/payment/payment-notes/1.0.0/bundle.js"))

		status, body = call(http.MethodGet, "/bundles/"+pluginID, nil, false)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(Equal(exampleBundle()))
	})

	It("installs the plugin for an organization", func() {
		status, body := call(http.MethodPost, "/plugins/install", mustJSON(map[string]string{
			"pluginId": pluginID, "organizationId": org, "userId": "admin-1",
		}), true)
		Expect(status).To(Equal(http.StatusCreated), string(body))
		installationID = gjson.GetBytes(body, "data.id").String()
		Expect(gjson.GetBytes(body, "data.enabled").Bool()).To(BeTrue())
		Expect(gjson.GetBytes(body, "data.installedVersion").String()).To(Equal("1.0.0"))

		status, _ = call(http.MethodPost, "/plugins/install", mustJSON(map[string]string{
			"pluginId": pluginID, "organizationId": org,
		}), true)
		Expect(status).To(Equal(http.StatusConflict))
	})

	It("keeps configuration and internal metadata out of public listings", func() {
		status, _ := call(http.MethodPatch, "/plugins/installed/"+installationID+"/configure",
			mustJSON(map[string]any{"secretKey": "sk_live_9"}), true)
		Expect(status).To(Equal(http.StatusOK))

		for _, path := range []string{
			"/public/plugins",
			"/public/organizations/" + org + "/plugins",
			"/public/organizations/" + org + "/plugins/payment",
		} {
			status, body := call(http.MethodGet, path, nil, false)
			Expect(status).To(Equal(http.StatusOK), path)
			Expect(string(body)).To(ContainSubstring("Payment Notes"), path)
			Expect(string(body)).NotTo(ContainSubstring("sk_live_9"), path)
			Expect(string(body)).NotTo(ContainSubstring("whsec_1"), path)
		}

		status, body := call(http.MethodGet, "/plugins/organization/"+org, nil, true)
		Expect(status).To(Equal(http.StatusOK))
		Expect(gjson.GetBytes(body, "data.0.installation.configuration.secretKey").String()).To(Equal("sk_live_9"))
	})

	It("renders the widget area with a proxied quote", func() {
		status, body := call(http.MethodGet, widgetPath("E1"), nil, false,
			"Authorization", "Bearer user-token", httpapi.UserHeader, "user-1")
		Expect(status).To(Equal(http.StatusOK), string(body))

		html := string(body)
		Expect(strings.Count(html, `class="tessera-widget"`)).To(Equal(1))
		Expect(html).To(ContainSubstring(`data-plugin-id="` + pluginID + `"`))
		Expect(html).To(ContainSubstring(`data-event="E1"`))
		Expect(html).To(ContainSubstring("42.50"))

		var quote execCall
		Eventually(env.execCalls).Should(Receive(&quote))
		Expect(quote.path).To(Equal("/plugins/" + pluginID + "/quote"))
		Expect(quote.auth).To(Equal("Bearer user-token"))
		Expect(gjson.GetBytes(quote.body, "amount").Int()).To(Equal(int64(40)))

		Expect(testutil.CollectAndCount(env.registry, "tessera_widget_area_renders_total")).To(BeNumerically(">=", 1))
	})

	It("forwards proxy calls only for organizations with the plugin enabled", func() {
		status, body := call(http.MethodPost, "/plugins/proxy/"+pluginID+"/quote", []byte(`{"amount":1}`), false,
			proxy.OrganizationHeader, org, "Content-Type", "application/json")
		Expect(status).To(Equal(http.StatusOK), string(body))
		Expect(gjson.GetBytes(body, "data.total").Float()).To(Equal(42.5))
		Eventually(env.execCalls).Should(Receive())

		status, _ = call(http.MethodPost, "/plugins/proxy/"+pluginID+"/quote", []byte(`{}`), false,
			proxy.OrganizationHeader, "someone-else")
		Expect(status).To(Equal(http.StatusForbidden))
	})

	It("hides the widget once the installation is disabled", func() {
		status, _ := call(http.MethodPatch, "/plugins/installed/"+installationID+"/disable", nil, true)
		Expect(status).To(Equal(http.StatusOK))

		status, body := call(http.MethodGet, widgetPath("E2"), nil, false)
		Expect(status).To(Equal(http.StatusOK))
		Expect(body).To(BeEmpty())

		status, _ = call(http.MethodPost, "/plugins/proxy/"+pluginID+"/quote", []byte(`{}`), false,
			proxy.OrganizationHeader, org)
		Expect(status).To(Equal(http.StatusForbidden))
	})

	It("survives a restart with state in PostgreSQL", func() {
		env.setHandler(env.router())

		status, _ := call(http.MethodPatch, "/plugins/installed/"+installationID+"/enable", nil, true)
		Expect(status).To(Equal(http.StatusOK))

		status, body := call(http.MethodGet, widgetPath("E3"), nil, false)
		Expect(status).To(Equal(http.StatusOK))
		Expect(string(body)).To(ContainSubstring(`data-event="E3"`))
		Eventually(env.execCalls).Should(Receive())
	})

	It("uninstalls and retires the plugin", func() {
		status, _ := call(http.MethodDelete, "/plugins/installed/"+installationID, nil, true)
		Expect(status).To(Equal(http.StatusOK))

		status, _ = call(http.MethodPatch, "/plugins/"+pluginID+"/deprecate", nil, true)
		Expect(status).To(Equal(http.StatusOK))

		status, body := call(http.MethodPost, "/plugins/install", mustJSON(map[string]string{
			"pluginId": pluginID, "organizationId": org,
		}), true)
		Expect(status).To(Equal(http.StatusConflict), string(body))
		Expect(gjson.GetBytes(body, "error.code").String()).To(Equal("INVALID_STATE"))

		status, _ = call(http.MethodDelete, "/plugins/"+pluginID, nil, true)
		Expect(status).To(Equal(http.StatusOK))
		status, _ = call(http.MethodGet, "/public/plugins/"+pluginID+"/bundle-url", nil, false)
		Expect(status).To(Equal(http.StatusNotFound))
	})
})

var _ = Describe("admin authentication", func() {
	It("rejects missing and wrong keys", func() {
		status, body := call(http.MethodGet, "/plugins", nil, false)
		Expect(status).To(Equal(http.StatusUnauthorized))
		Expect(gjson.GetBytes(body, "error.code").String()).To(Equal("UNAUTHORIZED"))

		status, _ = call(http.MethodGet, "/plugins", nil, false, "Authorization", "Bearer wrong")
		Expect(status).To(Equal(http.StatusUnauthorized))
	})
})
