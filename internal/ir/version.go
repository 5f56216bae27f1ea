package ir

// EngineVersion is the lineage engine version.
const EngineVersion = "0.1.0"
