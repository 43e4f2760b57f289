// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tessera Contributors

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/tessera-dev/tessera/internal/auth"
)

const keyPrefix = "tsr_"

// NewHashKeyCmd creates the hash-key subcommand.
func NewHashKeyCmd() *cobra.Command {
	var generate bool
	cmd := &cobra.Command{
		Use:   "hash-key [key]",
		Short: "Hash an admin key for admin.key_hashes",
		Long: `Print the argon2id hash of an admin key for the admin.key_hashes setting.
The key is read from the argument or from the first line of stdin. With
--generate a random key is created and printed along with its hash.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var key string
			switch {
			case generate:
				k, err := generateKey()
				if err != nil {
					return err
				}
				key = k
				cmd.Println("key:  " + key)
			case len(args) == 1:
				key = args[0]
			default:
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return auth.ErrEmptyKey
				}
				key = strings.TrimSpace(line)
			}

			hash, err := auth.NewArgon2idHasher().Hash(key)
			if err != nil {
				return err
			}
			if generate {
				cmd.Println("hash: " + hash)
				return nil
			}
			cmd.Println(hash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&generate, "generate", false, "generate a random key")
	return cmd
}

func generateKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", oops.Wrap(err)
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}
