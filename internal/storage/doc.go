/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package storage persists diary reports in two tiers: an authoritative remote
// (HTTP API or S3 bucket) and a local cache (JSON files with timestamped backups,
// or an embedded SQLite database). Tiered coordinates both, retrying reads and
// verifying writes. All tiers exchange the same schema-validated Payload.
package storage
