// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package plex is the declarative authoring surface of an
// Entity-Component-System application framework: it describes the shared
// Context that systems read and write, the data-access footprint a System
// declares, and the Stages that group systems into ordered phases.
//
// plex itself has no concurrency machinery; it is consumed by
// plex/scheduler, which compiles registered stages into a dependency DAG
// and executes it with maximum parallelism while preserving the exclusion
// rules implied by each System's declared QueryDataAccess records.
package plex
