// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse is the host-OS driver shim: thin glue between the
// kernel's FUSE protocol and the TananFS core in lib/fs.
//
// Every node operation translates directly to one core call and maps
// the core's error kinds onto errno values; no filesystem logic lives
// here. Open and Opendir hand out zero-valued handles, Release is a
// no-op — file lifetime is the kernel's business, the core tracks
// nothing per handle.
//
// While mounted, a background ticker drives the core's periodic
// flush, so dirty cache entries reach the device within the flush
// interval even when the volume is idle.
package fuse
