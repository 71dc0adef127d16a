// Package vault provides CredentialVault implementations: an in-process
// MemoryVault and a RedisVault that keeps credentials across restarts and
// shares them between replicas.
package vault
