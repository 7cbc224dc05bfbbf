/* This program is free software. It comes without any warranty, to
 * the extent permitted by applicable law. You can redistribute it
 * and/or modify it under the terms of the Do What The Fuck You Want
 * To Public License, Version 2, as published by Sam Hocevar. See
 * http://sam.zoy.org/wtfpl/COPYING for more details. */

// Package tlsf implements a Two-Level Segregated Fit dynamic storage
// allocator: a general-purpose heap over one or more caller-supplied,
// contiguous memory regions, offering O(1) worst-case malloc, memalign,
// realloc, and free with low fragmentation.
//
// IMPORTANT: Control is NOT goroutine-safe. Every public method reads and
// mutates shared free-list state; concurrent calls from multiple
// goroutines, or from a goroutine and a signal handler, require external
// serialization. See package guard for a mutex-backed wrapper.
package tlsf
