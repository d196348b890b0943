package sleuthkit

import (
	"strconv"

	log "github.com/sirupsen/logrus"
)

// Icat recovers the raw content of an entry by running icat. Deleted
// entries are recovered when possible (-r).
func Icat(partition *Partition, meta MetaAddress) ([]byte, error) {
	args := []string{"-r", "-o", strconv.FormatUint(uint64(partition.Start), 10)}
	if partition.Table.ImgType != "" {
		args = append(args, "-i", string(partition.Table.ImgType))
	}
	args = append(args, partition.Table.ImageFiles...)
	args = append(args, meta.Address)

	out, err := runOutput("icat", args...)
	if err != nil {
		return nil, err
	}
	log.Debugf("icat returned %d bytes", len(out))
	return out, nil
}
