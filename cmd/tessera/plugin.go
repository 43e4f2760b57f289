// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tessera-dev/tessera/internal/catalog"
	"github.com/tessera-dev/tessera/pkg/errutil"
)

// adminKeyEnv holds the admin key used by the plugin commands.
const adminKeyEnv = "TESSERA_ADMIN_KEY"

const requestTimeout = 30 * time.Second

// NewPluginCmd creates the plugin command group.
func NewPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Validate and register plugin manifests",
	}
	cmd.AddCommand(newPluginValidateCmd(), newPluginRegisterCmd())
	return cmd
}

func newPluginValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plugin.yaml>...",
		Short: "Check plugin manifests against the manifest schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				m, err := readManifest(path)
				if err != nil {
					failed++
					cmd.PrintErrf("%s: %v\n", path, err)
					continue
				}
				cmd.Printf("%s: ok (%s@%s, %d extension point(s))\n", path, m.Name, m.Version, len(m.ExtensionPoints))
			}
			if failed > 0 {
				return oops.Code(errutil.CodeRegistrationInvalid).Errorf("%d of %d manifest(s) invalid", failed, len(args))
			}
			return nil
		},
	}
}

type registerConfig struct {
	server string
	key    string
	bundle string
}

func newPluginRegisterCmd() *cobra.Command {
	cfg := &registerConfig{}
	cmd := &cobra.Command{
		Use:   "register <plugin.yaml>",
		Short: "Register a plugin with a running server",
		Long: `Register the plugin described by a manifest with a running tessera
server and optionally upload its bundle. The admin key is read from --key
or ` + adminKeyEnv + `.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.key == "" {
				cfg.key = os.Getenv(adminKeyEnv)
			}
			return runRegister(cmd, cfg, args[0])
		},
	}
	cmd.Flags().StringVar(&cfg.server, "server", "http://127.0.0.1:8080", "tessera API base URL")
	cmd.Flags().StringVar(&cfg.key, "key", "", "admin key (default: $"+adminKeyEnv+")")
	cmd.Flags().StringVar(&cfg.bundle, "bundle", "", "bundle file to upload after registering")
	return cmd
}

func runRegister(cmd *cobra.Command, cfg *registerConfig, path string) error {
	if cfg.key == "" {
		return oops.Code(errutil.CodeUnauthorized).Errorf("an admin key is required (--key or %s)", adminKeyEnv)
	}
	m, err := readManifest(path)
	if err != nil {
		return err
	}
	req, err := m.RegisterRequest()
	if err != nil {
		return err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return oops.Wrap(err)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), requestTimeout)
	defer cancel()
	client := &adminClient{base: cfg.server, key: cfg.key, http: http.DefaultClient}

	var def catalog.Definition
	if err := client.do(ctx, http.MethodPost, "plugins", "application/json", bytes.NewReader(body), &def); err != nil {
		return err
	}
	cmd.Printf("Registered %s@%s as %s\n", def.Name, def.Version, def.ID)

	if cfg.bundle == "" {
		return nil
	}
	f, err := os.Open(cfg.bundle)
	if err != nil {
		return oops.With("path", cfg.bundle).Wrap(err)
	}
	defer func() { _ = f.Close() }()

	var uploaded struct {
		Key string `json:"key"`
	}
	if err := client.do(ctx, http.MethodPut, "plugins/"+def.ID.String()+"/bundle", "application/javascript", f, &uploaded); err != nil {
		return err
	}
	cmd.Printf("Uploaded bundle to %s\n", uploaded.Key)
	return nil
}

func readManifest(path string) (*catalog.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.With("path", path).Wrap(err)
	}
	return catalog.ParseManifest(data)
}

// adminClient calls the admin API and unwraps the response envelope.
type adminClient struct {
	base string
	key  string
	http *http.Client
}

func (c *adminClient) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	target, err := url.JoinPath(c.base, path)
	if err != nil {
		return oops.Code(errutil.CodeInvalidRequest).With("server", c.base).Wrap(err)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return oops.Wrap(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.key)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return oops.With("url", target).Wrapf(err, "request failed")
	}
	defer func() { _ = resp.Body.Close() }()

	var env struct {
		Success bool               `json:"success"`
		Data    json.RawMessage    `json:"data"`
		Error   *errutil.ErrorBody `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err != nil {
		return oops.With("status", resp.StatusCode).Wrapf(err, "decode response from %s", target)
	}
	if !env.Success {
		if env.Error == nil {
			return oops.With("status", resp.StatusCode).Errorf("%s %s failed", method, path)
		}
		return oops.Code(env.Error.Code).With("status", resp.StatusCode).Errorf("%s", strings.TrimSpace(env.Error.Message))
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return oops.Wrap(json.Unmarshal(env.Data, out))
}
