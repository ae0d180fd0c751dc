package protocol

// Replica names a read target: a configured alias bound to the object-storage
// location holding the replica's transaction log.
type Replica struct {
	Alias string
	Store ReplicaStore
}

// Validate returns an error if the Replica is not well-formed.
func (r Replica) Validate() error {
	if r.Alias == "" {
		return NewValidationError("missing replica alias")
	} else if err := r.Store.Validate(); err != nil {
		return ExtendContext(err, "Store")
	}
	return nil
}
