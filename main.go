// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("go-storesync - Offline-First POS Synchronization Library")
	fmt.Println("=========================================================")
	fmt.Println()
	fmt.Println("go-storesync keeps a client-side offline store and a server-side")
	fmt.Println("authoritative store convergent across tenants and devices, using a")
	fmt.Println("generic per-table change-set protocol with last-write-wins merging.")
	fmt.Println()
	fmt.Println("Packages:")
	fmt.Println()
	fmt.Println("  storesync/    Server-side reconciliation engine (PostgreSQL)")
	fmt.Println("                Tenant-scoped deletions, idempotent upserts and")
	fmt.Println("                incremental watermark pulls over a storage port.")
	fmt.Println()
	fmt.Println("  storesqlite/  Client-side local store (SQLite)")
	fmt.Println("                Pending/synced tracking, change-set building,")
	fmt.Println("                apply engine and the auto-sync scheduler.")
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println()
	fmt.Println("  examples/posserver/  Complete runnable sync server")
	fmt.Println("  Run: cd examples/posserver && go run .")
}
