package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"heredity/internal/model"
)

const (
	CurrentSchemaVersion = 2
	CurrentCodecVersion  = 1

	// Schema 1 predates dominance, epigenetic marks and recurrent genomes.
	legacySchemaVersion = 1
	// DefaultDominance fills alleles read from schema 1 records.
	DefaultDominance = 0.5
)

var ErrVersionMismatch = errors.New("record version mismatch")

func currentVersion() model.VersionedRecord {
	return model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
}

func EncodeOrganism(rec model.OrganismRecord) ([]byte, error) {
	rec.VersionedRecord = currentVersion()
	rec.Traits.VersionedRecord = currentVersion()
	rec.Brain.VersionedRecord = currentVersion()
	return json.Marshal(rec)
}

// DecodeOrganism reads current and schema 1 records. Schema 1 records are
// default-filled with a warning; anything newer is rejected.
func DecodeOrganism(data []byte) (model.OrganismRecord, error) {
	var rec model.OrganismRecord
	v, err := decodeVersioned(data, &rec)
	if err != nil {
		return model.OrganismRecord{}, err
	}
	if v.SchemaVersion == legacySchemaVersion {
		slog.Warn("organism record default-filled", "organism", rec.ID, "schema_version", v.SchemaVersion)
		fillTraits(&rec.Traits)
		fillBrain(&rec.Brain)
	}
	rec.VersionedRecord = currentVersion()
	rec.Traits.VersionedRecord = currentVersion()
	rec.Brain.VersionedRecord = currentVersion()
	return rec, nil
}

func EncodeDiploidGenome(rec model.DiploidGenomeRecord) ([]byte, error) {
	rec.VersionedRecord = currentVersion()
	return json.Marshal(rec)
}

func DecodeDiploidGenome(data []byte) (model.DiploidGenomeRecord, error) {
	var rec model.DiploidGenomeRecord
	v, err := decodeVersioned(data, &rec)
	if err != nil {
		return model.DiploidGenomeRecord{}, err
	}
	if v.SchemaVersion == legacySchemaVersion {
		slog.Warn("trait genome record default-filled", "schema_version", v.SchemaVersion)
		fillTraits(&rec)
	}
	rec.VersionedRecord = currentVersion()
	return rec, nil
}

func EncodeNeuralGenome(rec model.NeuralGenomeRecord) ([]byte, error) {
	rec.VersionedRecord = currentVersion()
	return json.Marshal(rec)
}

func DecodeNeuralGenome(data []byte) (model.NeuralGenomeRecord, error) {
	var rec model.NeuralGenomeRecord
	v, err := decodeVersioned(data, &rec)
	if err != nil {
		return model.NeuralGenomeRecord{}, err
	}
	if v.SchemaVersion == legacySchemaVersion {
		slog.Warn("neural genome record default-filled", "schema_version", v.SchemaVersion)
		fillBrain(&rec)
	}
	rec.VersionedRecord = currentVersion()
	return rec, nil
}

func fillTraits(rec *model.DiploidGenomeRecord) {
	for i := range rec.Maternal {
		rec.Maternal[i].Dominance = DefaultDominance
	}
	for i := range rec.Paternal {
		rec.Paternal[i].Dominance = DefaultDominance
	}
	rec.Marks = nil
}

func fillBrain(rec *model.NeuralGenomeRecord) {
	rec.Recurrent = false
}

func EncodeLineage(records []model.LineageRecord) ([]byte, error) {
	stamped := make([]model.LineageRecord, len(records))
	for i, r := range records {
		r.VersionedRecord = currentVersion()
		stamped[i] = r
	}
	return json.Marshal(stamped)
}

func DecodeLineage(data []byte) ([]model.LineageRecord, error) {
	var records []model.LineageRecord
	if err := decodeStrict(data, &records); err != nil {
		return nil, err
	}
	for i, record := range records {
		if err := checkVersion(record.VersionedRecord); err != nil {
			return nil, fmt.Errorf("lineage record %d: %w", record.OrganismID, err)
		}
		records[i].VersionedRecord = currentVersion()
	}
	return records, nil
}

func EncodeSpeciesHistory(history []model.SpeciesGeneration) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeSpeciesHistory(data []byte) ([]model.SpeciesGeneration, error) {
	var history []model.SpeciesGeneration
	if err := decodeStrict(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeFitnessHistory(history []model.GenerationStats) ([]byte, error) {
	return json.Marshal(history)
}

func DecodeFitnessHistory(data []byte) ([]model.GenerationStats, error) {
	var history []model.GenerationStats
	if err := decodeStrict(data, &history); err != nil {
		return nil, err
	}
	return history, nil
}

func EncodeRegistryState(state model.RegistryState) ([]byte, error) {
	state.VersionedRecord = currentVersion()
	return json.Marshal(state)
}

func DecodeRegistryState(data []byte) (model.RegistryState, error) {
	var state model.RegistryState
	if _, err := decodeVersioned(data, &state); err != nil {
		return model.RegistryState{}, err
	}
	state.VersionedRecord = currentVersion()
	return state, nil
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	run.VersionedRecord = currentVersion()
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if _, err := decodeVersioned(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	run.VersionedRecord = currentVersion()
	return run, nil
}

// decodeVersioned checks the envelope version before decoding the full
// record strictly, so unknown fields fail instead of being dropped.
func decodeVersioned(data []byte, out any) (model.VersionedRecord, error) {
	var v model.VersionedRecord
	if err := json.Unmarshal(data, &v); err != nil {
		return model.VersionedRecord{}, err
	}
	if err := checkVersion(v); err != nil {
		return model.VersionedRecord{}, err
	}
	if err := decodeStrict(data, out); err != nil {
		return model.VersionedRecord{}, err
	}
	return v, nil
}

func decodeStrict(data []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func checkVersion(v model.VersionedRecord) error {
	if v.CodecVersion != CurrentCodecVersion ||
		v.SchemaVersion < legacySchemaVersion ||
		v.SchemaVersion > CurrentSchemaVersion {
		return fmt.Errorf("%w: schema %d codec %d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}
