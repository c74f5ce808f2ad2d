// Package models manages the multi-file model assets of the MoFA voice
// assistant: PrimeSpeech voices and their shared base encoders, G2PW,
// Kokoro voice embeddings, and FunASR recognition models.
//
// The package serves two primary use cases:
//
//  1. Programmatic API via the Manager interface - Applications can use
//     NewManager to check, acquire, and remove assets by catalog name.
//
//  2. Embeddable CLI via NewCommand - Parent CLI tools can attach a complete
//     "models" subcommand tree to their Cobra root command, providing commands
//     like "mytool models download", "mytool models list", etc.
//
// # Catalog
//
// Every asset is declared up front in an immutable Catalog: its remote
// repository, the exact files it needs, and where they live locally. The
// built-in catalog is embedded YAML (see DefaultCatalog); ParseCatalog and
// NewCatalog build custom ones. Assets shared by others, such as
// "primespeech-base", name their dependents explicitly.
//
// # State
//
// Asset state is never persisted. Check derives it from the files on disk
// on every call: an asset is present when every file exists and complete
// when every file also meets its minimum size. Undersized files are
// placeholders (for example Git LFS pointers) and are fetched again by the
// next Acquire.
//
// # Removal
//
// Removal is always confirmed through a ConfirmFunc. A shared asset whose
// dependents are still on disk is kept unless the cascade option is given,
// in which case the dependents go first.
//
// # Storage
//
// Each asset family has its own root, resolved in this order:
//   - Config.Root (the CLI --dir flag)
//   - the family environment variable, e.g. PRIMESPEECH_MODEL_DIR
//   - Config.FamilyDirs
//   - <base>/<family>, where base is <APPNAME>_MODELS_DIR, Config.DataDir,
//     or ~/.dora/models
//
// Mutating operations hold an advisory lock file in each family root, so
// concurrent processes never interleave writes and deletes.
package models
