// Copyright 2025 The Gainius Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("Gainius sync engine")
	fmt.Println("===================")
	fmt.Println()
	fmt.Println("Offline-first synchronization for the Gainius personal tracker:")
	fmt.Println("a durable write-queue of local mutations replayed against a shared")
	fmt.Println("remote store, with incremental watermark pulls back to the device.")
	fmt.Println()
	fmt.Println("Packages:")
	fmt.Println("  store/  - SQLite local store for users, plans, sessions and chats")
	fmt.Println("  syncer/ - durable queue, entity mapper, sync engine, scheduler")
	fmt.Println("  remote/ - row API contract, PostgREST HTTP client, pgx backend")
	fmt.Println()
	fmt.Println("See package documentation for usage; this module is a library.")
}
